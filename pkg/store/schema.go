package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the Postgres DDL for the payout records and the merchant directory.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS payout (
        payout_id VARCHAR(64) NOT NULL,
        merchant_id VARCHAR(64) NOT NULL,
        customer_id VARCHAR(64) NOT NULL,
        address_id VARCHAR(64) NOT NULL DEFAULT '',
        payout_type VARCHAR(16) NOT NULL,
        payout_method_id VARCHAR(64) NOT NULL DEFAULT '',
        amount BIGINT NOT NULL,
        source_currency VARCHAR(3) NOT NULL,
        destination_currency VARCHAR(3) NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        recurring BOOLEAN NOT NULL DEFAULT FALSE,
        auto_fulfill BOOLEAN NOT NULL DEFAULT FALSE,
        return_url TEXT NOT NULL DEFAULT '',
        entity_type VARCHAR(32) NOT NULL,
        metadata JSONB,
        status VARCHAR(32) NOT NULL,
        attempt_count INTEGER NOT NULL,
        profile_id VARCHAR(64) NOT NULL,
        confirm BOOLEAN,
        payout_link_id VARCHAR(64) NOT NULL DEFAULT '',
        client_secret VARCHAR(128) NOT NULL DEFAULT '',
        priority VARCHAR(16) NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL,
        last_modified_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (merchant_id, payout_id)
    )`,
	`CREATE INDEX IF NOT EXISTS payout_customer_idx ON payout (merchant_id, customer_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS payout_attempt (
        payout_attempt_id VARCHAR(64) NOT NULL,
        payout_id VARCHAR(64) NOT NULL,
        customer_id VARCHAR(64) NOT NULL,
        merchant_id VARCHAR(64) NOT NULL,
        address_id VARCHAR(64) NOT NULL DEFAULT '',
        connector VARCHAR(64) NOT NULL DEFAULT '',
        connector_payout_id VARCHAR(128) NOT NULL DEFAULT '',
        payout_token VARCHAR(128) NOT NULL DEFAULT '',
        status VARCHAR(32) NOT NULL,
        is_eligible BOOLEAN,
        error_code VARCHAR(64) NOT NULL DEFAULT '',
        error_message TEXT NOT NULL DEFAULT '',
        business_country VARCHAR(2) NOT NULL DEFAULT '',
        business_label VARCHAR(64) NOT NULL DEFAULT '',
        profile_id VARCHAR(64) NOT NULL,
        merchant_connector_id VARCHAR(64) NOT NULL DEFAULT '',
        routing_info JSONB,
        created_at TIMESTAMPTZ NOT NULL,
        last_modified_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (merchant_id, payout_attempt_id)
    )`,
	`CREATE TABLE IF NOT EXISTS payout_link (
        link_id VARCHAR(64) PRIMARY KEY,
        primary_reference VARCHAR(64) NOT NULL,
        merchant_id VARCHAR(64) NOT NULL,
        link_status VARCHAR(16) NOT NULL,
        link_data JSONB,
        url TEXT NOT NULL,
        return_url TEXT NOT NULL DEFAULT '',
        expiry TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        last_modified_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS business_profile (
        profile_id VARCHAR(64) NOT NULL,
        merchant_id VARCHAR(64) NOT NULL,
        payout_routing_algorithm JSONB,
        default_payout_connectors TEXT[] NOT NULL DEFAULT '{}',
        payout_link_config JSONB,
        PRIMARY KEY (merchant_id, profile_id)
    )`,
	`CREATE TABLE IF NOT EXISTS customer (
        customer_id VARCHAR(64) NOT NULL,
        merchant_id VARCHAR(64) NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        email TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        phone_country_code VARCHAR(8) NOT NULL DEFAULT '',
        connector_customer JSONB,
        PRIMARY KEY (merchant_id, customer_id)
    )`,
	`CREATE TABLE IF NOT EXISTS address (
        address_id VARCHAR(64) PRIMARY KEY,
        city TEXT NOT NULL DEFAULT '',
        country VARCHAR(2) NOT NULL DEFAULT '',
        line1 TEXT NOT NULL DEFAULT '',
        line2 TEXT NOT NULL DEFAULT '',
        line3 TEXT NOT NULL DEFAULT '',
        zip VARCHAR(16) NOT NULL DEFAULT '',
        state TEXT NOT NULL DEFAULT '',
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        phone_number TEXT NOT NULL DEFAULT '',
        country_code VARCHAR(8) NOT NULL DEFAULT '',
        email TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS configs (
        key VARCHAR(255) PRIMARY KEY,
        config TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS gateway_status_map (
        connector VARCHAR(64) NOT NULL,
        flow VARCHAR(64) NOT NULL,
        sub_flow VARCHAR(64) NOT NULL,
        code VARCHAR(255) NOT NULL,
        message VARCHAR(1024) NOT NULL,
        status VARCHAR(64) NOT NULL,
        decision VARCHAR(16) NOT NULL,
        step VARCHAR(64) NOT NULL DEFAULT '',
        PRIMARY KEY (connector, flow, sub_flow, code, message)
    )`,
}

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
