package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

const uniqueViolation = "23505"

const payoutColumns = `payout_id, merchant_id, customer_id, address_id, payout_type, payout_method_id, amount, ` +
	`source_currency, destination_currency, description, recurring, auto_fulfill, return_url, entity_type, ` +
	`metadata, status, attempt_count, profile_id, confirm, payout_link_id, client_secret, priority, ` +
	`created_at, last_modified_at`

const attemptColumns = `payout_attempt_id, payout_id, customer_id, merchant_id, address_id, connector, ` +
	`connector_payout_id, payout_token, status, is_eligible, error_code, error_message, business_country, ` +
	`business_label, profile_id, merchant_connector_id, routing_info, created_at, last_modified_at`

const linkColumns = `link_id, primary_reference, merchant_id, link_status, link_data, url, return_url, ` +
	`expiry, created_at, last_modified_at`

const customerColumns = `customer_id, merchant_id, name, email, phone, phone_country_code, connector_customer`

const addressColumns = `address_id, city, country, line1, line2, line3, zip, state, first_name, last_name, ` +
	`phone_number, country_code, email`

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresRepository) FindPayout(ctx context.Context, merchantID, payoutID string) (*payout.Payout, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payout WHERE merchant_id=$1 AND payout_id=$2`, merchantID, payoutID)
	return scanPayout(row)
}

func (p *PostgresRepository) InsertPayout(ctx context.Context, po *payout.Payout) (*payout.Payout, error) {
	err := p.withTransaction(ctx, "InsertPayout", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payout (`+payoutColumns+`)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
			po.PayoutID, po.MerchantID, po.CustomerID, po.AddressID, po.PayoutType, po.PayoutMethodID, po.Amount,
			po.SourceCurrency, po.DestinationCurrency, po.Description, po.Recurring, po.AutoFulfill, po.ReturnURL,
			po.EntityType, nullJSON(po.Metadata), po.Status, po.AttemptCount, po.ProfileID, nullBool(po.Confirm),
			po.PayoutLinkID, po.ClientSecret, po.Priority, po.CreatedAt, po.LastModifiedAt)
		return 1, err
	})
	if err != nil {
		return nil, err
	}
	rec := *po
	return &rec, nil
}

func (p *PostgresRepository) UpdatePayout(ctx context.Context, current *payout.Payout, upd payout.PayoutUpdate) (*payout.Payout, error) {
	rec := upd.Apply(*current, p.now())
	err := p.withTransaction(ctx, "UpdatePayout", func(ctx context.Context, tx *sql.Tx) (int, error) {
		res, err := tx.ExecContext(ctx,
			`UPDATE payout SET payout_type=$1, payout_method_id=$2, amount=$3, source_currency=$4, destination_currency=$5,
             description=$6, recurring=$7, auto_fulfill=$8, return_url=$9, entity_type=$10, metadata=$11, status=$12,
             attempt_count=$13, confirm=$14, priority=$15, last_modified_at=$16
             WHERE merchant_id=$17 AND payout_id=$18`,
			rec.PayoutType, rec.PayoutMethodID, rec.Amount, rec.SourceCurrency, rec.DestinationCurrency,
			rec.Description, rec.Recurring, rec.AutoFulfill, rec.ReturnURL, rec.EntityType, nullJSON(rec.Metadata),
			rec.Status, rec.AttemptCount, nullBool(rec.Confirm), rec.Priority, rec.LastModifiedAt,
			rec.MerchantID, rec.PayoutID)
		return affected(res, err)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresRepository) FilterPayouts(ctx context.Context, merchantID string, f PayoutFilter) ([]payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout WHERE merchant_id=$1`
	args := []any{merchantID}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		query += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payout.Payout
	for rows.Next() {
		po, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *po)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) FindAttempt(ctx context.Context, merchantID, attemptID string) (*payout.PayoutAttempt, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payout_attempt WHERE merchant_id=$1 AND payout_attempt_id=$2`, merchantID, attemptID)
	return scanAttempt(row)
}

func (p *PostgresRepository) InsertAttempt(ctx context.Context, a *payout.PayoutAttempt) (*payout.PayoutAttempt, error) {
	err := p.withTransaction(ctx, "InsertAttempt", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payout_attempt (`+attemptColumns+`)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			a.PayoutAttemptID, a.PayoutID, a.CustomerID, a.MerchantID, a.AddressID, a.Connector,
			a.ConnectorPayoutID, a.PayoutToken, a.Status, nullBool(a.IsEligible), a.ErrorCode, a.ErrorMessage,
			a.BusinessCountry, a.BusinessLabel, a.ProfileID, a.MerchantConnectorID, nullJSON(a.RoutingInfo),
			a.CreatedAt, a.LastModifiedAt)
		return 1, err
	})
	if err != nil {
		return nil, err
	}
	rec := *a
	return &rec, nil
}

func (p *PostgresRepository) UpdateAttempt(ctx context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate) (*payout.PayoutAttempt, error) {
	rec := upd.Apply(*current, p.now())
	err := p.withTransaction(ctx, "UpdateAttempt", func(ctx context.Context, tx *sql.Tx) (int, error) {
		res, err := tx.ExecContext(ctx,
			`UPDATE payout_attempt SET connector=$1, connector_payout_id=$2, payout_token=$3, status=$4, is_eligible=$5,
             error_code=$6, error_message=$7, business_country=$8, business_label=$9, routing_info=$10, last_modified_at=$11
             WHERE merchant_id=$12 AND payout_attempt_id=$13`,
			rec.Connector, rec.ConnectorPayoutID, rec.PayoutToken, rec.Status, nullBool(rec.IsEligible),
			rec.ErrorCode, rec.ErrorMessage, rec.BusinessCountry, rec.BusinessLabel, nullJSON(rec.RoutingInfo),
			rec.LastModifiedAt, rec.MerchantID, rec.PayoutAttemptID)
		return affected(res, err)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresRepository) InsertPayoutLink(ctx context.Context, l *payout.PayoutLink) (*payout.PayoutLink, error) {
	err := p.withTransaction(ctx, "InsertPayoutLink", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payout_link (`+linkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.LinkID, l.PrimaryReference, l.MerchantID, l.LinkStatus, nullJSON(l.LinkData), l.URL, l.ReturnURL,
			l.Expiry, l.CreatedAt, l.LastModifiedAt)
		return 1, err
	})
	if err != nil {
		return nil, err
	}
	rec := *l
	return &rec, nil
}

func (p *PostgresRepository) UpdatePayoutLink(ctx context.Context, current *payout.PayoutLink, status payout.LinkStatus) (*payout.PayoutLink, error) {
	rec := *current
	rec.LinkStatus = status
	rec.LastModifiedAt = p.now()
	err := p.withTransaction(ctx, "UpdatePayoutLink", func(ctx context.Context, tx *sql.Tx) (int, error) {
		res, err := tx.ExecContext(ctx,
			`UPDATE payout_link SET link_status=$1, last_modified_at=$2 WHERE link_id=$3`,
			rec.LinkStatus, rec.LastModifiedAt, rec.LinkID)
		return affected(res, err)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresRepository) FindPayoutLink(ctx context.Context, linkID string) (*payout.PayoutLink, error) {
	var (
		l        payout.PayoutLink
		linkData []byte
	)
	err := p.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM payout_link WHERE link_id=$1`, linkID).Scan(
		&l.LinkID, &l.PrimaryReference, &l.MerchantID, &l.LinkStatus, &linkData, &l.URL, &l.ReturnURL,
		&l.Expiry, &l.CreatedAt, &l.LastModifiedAt)
	if err != nil {
		return nil, notFound(err)
	}
	l.LinkData = linkData
	return &l, nil
}

func (p *PostgresRepository) FindBusinessProfile(ctx context.Context, merchantID, profileID string) (*payout.BusinessProfile, error) {
	var (
		bp         payout.BusinessProfile
		algorithm  []byte
		linkConfig []byte
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT profile_id, merchant_id, payout_routing_algorithm, default_payout_connectors, payout_link_config
         FROM business_profile WHERE merchant_id=$1 AND profile_id=$2`, merchantID, profileID).Scan(
		&bp.ProfileID, &bp.MerchantID, &algorithm, pq.Array(&bp.DefaultPayoutConnectors), &linkConfig)
	if err != nil {
		return nil, notFound(err)
	}
	bp.PayoutRoutingAlgorithm = algorithm
	if len(linkConfig) > 0 {
		bp.PayoutLinkConfig = &payout.LinkConfig{}
		if err := json.Unmarshal(linkConfig, bp.PayoutLinkConfig); err != nil {
			return nil, fmt.Errorf("decoding payout link config: %w", err)
		}
	}
	return &bp, nil
}

func (p *PostgresRepository) FindCustomer(ctx context.Context, merchantID, customerID string) (*payout.Customer, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customer WHERE merchant_id=$1 AND customer_id=$2`, merchantID, customerID)
	return scanCustomer(row)
}

func (p *PostgresRepository) UpdateCustomerConnector(ctx context.Context, merchantID, customerID, label, connectorCustomerID string) (*payout.Customer, error) {
	var c *payout.Customer
	err := p.withTransaction(ctx, "UpdateCustomerConnector", func(ctx context.Context, tx *sql.Tx) (int, error) {
		row := tx.QueryRowContext(ctx,
			`UPDATE customer SET connector_customer = COALESCE(connector_customer, '{}'::jsonb) || jsonb_build_object($1::text, $2::text)
             WHERE merchant_id=$3 AND customer_id=$4 RETURNING `+customerColumns,
			label, connectorCustomerID, merchantID, customerID)
		var err error
		c, err = scanCustomer(row)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgresRepository) FindAddress(ctx context.Context, addressID string) (*payout.Address, error) {
	var a payout.Address
	err := p.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM address WHERE address_id=$1`, addressID).Scan(
		&a.AddressID, &a.City, &a.Country, &a.Line1, &a.Line2, &a.Line3, &a.Zip, &a.State,
		&a.FirstName, &a.LastName, &a.PhoneNumber, &a.CountryCode, &a.Email)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (p *PostgresRepository) InsertAddress(ctx context.Context, a *payout.Address) (*payout.Address, error) {
	err := p.withTransaction(ctx, "InsertAddress", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO address (`+addressColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.AddressID, a.City, a.Country, a.Line1, a.Line2, a.Line3, a.Zip, a.State,
			a.FirstName, a.LastName, a.PhoneNumber, a.CountryCode, a.Email)
		return 1, err
	})
	if err != nil {
		return nil, err
	}
	rec := *a
	return &rec, nil
}

func (p *PostgresRepository) FindConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT config FROM configs WHERE key=$1`, key).Scan(&value)
	if err != nil {
		return "", notFound(err)
	}
	return value, nil
}

func (p *PostgresRepository) FindGsmRule(ctx context.Context, key payout.GsmKey) (*payout.GsmRule, error) {
	r := payout.GsmRule{GsmKey: key}
	err := p.db.QueryRowContext(ctx,
		`SELECT status, decision, step FROM gateway_status_map
         WHERE connector=$1 AND flow=$2 AND sub_flow=$3 AND code=$4 AND message=$5`,
		key.Connector, key.Flow, key.SubFlow, key.Code, key.Message).Scan(&r.Status, &r.Decision, &r.Step)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (p *PostgresRepository) withTransaction(ctx context.Context, spanName string, fn func(ctx context.Context, tx *sql.Tx) (int, error)) error {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	n, err := fn(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		telemetry.RecordError(span, err)
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	telemetry.AddDBStats(span, "postgresql", spanName, n, time.Since(start))
	return nil
}

func scanPayout(row rowScanner) (*payout.Payout, error) {
	var (
		po       payout.Payout
		metadata []byte
		confirm  sql.NullBool
	)
	err := row.Scan(&po.PayoutID, &po.MerchantID, &po.CustomerID, &po.AddressID, &po.PayoutType, &po.PayoutMethodID,
		&po.Amount, &po.SourceCurrency, &po.DestinationCurrency, &po.Description, &po.Recurring, &po.AutoFulfill,
		&po.ReturnURL, &po.EntityType, &metadata, &po.Status, &po.AttemptCount, &po.ProfileID, &confirm,
		&po.PayoutLinkID, &po.ClientSecret, &po.Priority, &po.CreatedAt, &po.LastModifiedAt)
	if err != nil {
		return nil, notFound(err)
	}
	po.Metadata = metadata
	if confirm.Valid {
		po.Confirm = payout.BoolPtr(confirm.Bool)
	}
	return &po, nil
}

func scanAttempt(row rowScanner) (*payout.PayoutAttempt, error) {
	var (
		a           payout.PayoutAttempt
		eligible    sql.NullBool
		routingInfo []byte
	)
	err := row.Scan(&a.PayoutAttemptID, &a.PayoutID, &a.CustomerID, &a.MerchantID, &a.AddressID, &a.Connector,
		&a.ConnectorPayoutID, &a.PayoutToken, &a.Status, &eligible, &a.ErrorCode, &a.ErrorMessage,
		&a.BusinessCountry, &a.BusinessLabel, &a.ProfileID, &a.MerchantConnectorID, &routingInfo,
		&a.CreatedAt, &a.LastModifiedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if eligible.Valid {
		a.IsEligible = payout.BoolPtr(eligible.Bool)
	}
	a.RoutingInfo = routingInfo
	return &a, nil
}

func scanCustomer(row rowScanner) (*payout.Customer, error) {
	var (
		c         payout.Customer
		connector []byte
	)
	err := row.Scan(&c.CustomerID, &c.MerchantID, &c.Name, &c.Email, &c.Phone, &c.PhoneCountryCode, &connector)
	if err != nil {
		return nil, notFound(err)
	}
	if len(connector) > 0 {
		if err := json.Unmarshal(connector, &c.ConnectorCustomer); err != nil {
			return nil, fmt.Errorf("decoding connector customer: %w", err)
		}
	}
	return &c, nil
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, strings.TrimSpace(pqErr.Detail))
	}
	return notFound(err)
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
