package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// MemoryRepository is a Backend kept in process memory. It backs tests and
// database.type=memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	payouts   map[string]payout.Payout
	attempts  map[string]payout.PayoutAttempt
	links     map[string]payout.PayoutLink
	profiles  map[string]payout.BusinessProfile
	customers map[string]payout.Customer
	addresses map[string]payout.Address
	configs   map[string]string
	gsmRules  map[payout.GsmKey]payout.GsmRule
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payouts:   make(map[string]payout.Payout),
		attempts:  make(map[string]payout.PayoutAttempt),
		links:     make(map[string]payout.PayoutLink),
		profiles:  make(map[string]payout.BusinessProfile),
		customers: make(map[string]payout.Customer),
		addresses: make(map[string]payout.Address),
		configs:   make(map[string]string),
		gsmRules:  make(map[payout.GsmKey]payout.GsmRule),
		now:       time.Now,
	}
}

func merchantKey(merchantID, id string) string {
	return merchantID + "/" + id
}

// PutBusinessProfile seeds a profile.
func (m *MemoryRepository) PutBusinessProfile(p payout.BusinessProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[merchantKey(p.MerchantID, p.ProfileID)] = p
}

// PutCustomer seeds a customer.
func (m *MemoryRepository) PutCustomer(c payout.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ConnectorCustomer = maps.Clone(c.ConnectorCustomer)
	m.customers[merchantKey(c.MerchantID, c.CustomerID)] = c
}

// PutConfig seeds a configuration entry.
func (m *MemoryRepository) PutConfig(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[key] = value
}

// PutGsmRule seeds a gateway status mapping rule.
func (m *MemoryRepository) PutGsmRule(r payout.GsmRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gsmRules[r.GsmKey] = r
}

func (m *MemoryRepository) FindPayout(_ context.Context, merchantID, payoutID string) (*payout.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[merchantKey(merchantID, payoutID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) InsertPayout(_ context.Context, p *payout.Payout) (*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := merchantKey(p.MerchantID, p.PayoutID)
	if _, ok := m.payouts[key]; ok {
		return nil, ErrDuplicate
	}
	rec := *p
	m.payouts[key] = rec
	return &rec, nil
}

func (m *MemoryRepository) UpdatePayout(_ context.Context, current *payout.Payout, upd payout.PayoutUpdate) (*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := merchantKey(current.MerchantID, current.PayoutID)
	stored, ok := m.payouts[key]
	if !ok {
		return nil, ErrNotFound
	}
	rec := upd.Apply(stored, m.now())
	m.payouts[key] = rec
	return &rec, nil
}

func (m *MemoryRepository) FilterPayouts(_ context.Context, merchantID string, f PayoutFilter) ([]payout.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payout.Payout
	for _, p := range m.payouts {
		if p.MerchantID != merchantID {
			continue
		}
		if f.CustomerID != "" && p.CustomerID != f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PayoutID > out[j].PayoutID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(set []payout.Status, s payout.Status) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) FindAttempt(_ context.Context, merchantID, attemptID string) (*payout.PayoutAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[merchantKey(merchantID, attemptID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) InsertAttempt(_ context.Context, a *payout.PayoutAttempt) (*payout.PayoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := merchantKey(a.MerchantID, a.PayoutAttemptID)
	if _, ok := m.attempts[key]; ok {
		return nil, ErrDuplicate
	}
	rec := *a
	m.attempts[key] = rec
	return &rec, nil
}

func (m *MemoryRepository) UpdateAttempt(_ context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate) (*payout.PayoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := merchantKey(current.MerchantID, current.PayoutAttemptID)
	stored, ok := m.attempts[key]
	if !ok {
		return nil, ErrNotFound
	}
	rec := upd.Apply(stored, m.now())
	m.attempts[key] = rec
	return &rec, nil
}

func (m *MemoryRepository) InsertPayoutLink(_ context.Context, l *payout.PayoutLink) (*payout.PayoutLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[l.LinkID]; ok {
		return nil, ErrDuplicate
	}
	rec := *l
	m.links[l.LinkID] = rec
	return &rec, nil
}

func (m *MemoryRepository) UpdatePayoutLink(_ context.Context, current *payout.PayoutLink, status payout.LinkStatus) (*payout.PayoutLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.links[current.LinkID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.LinkStatus = status
	rec.LastModifiedAt = m.now()
	m.links[current.LinkID] = rec
	return &rec, nil
}

func (m *MemoryRepository) FindPayoutLink(_ context.Context, linkID string) (*payout.PayoutLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[linkID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *MemoryRepository) FindBusinessProfile(_ context.Context, merchantID, profileID string) (*payout.BusinessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[merchantKey(merchantID, profileID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) FindCustomer(_ context.Context, merchantID, customerID string) (*payout.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[merchantKey(merchantID, customerID)]
	if !ok {
		return nil, ErrNotFound
	}
	c.ConnectorCustomer = maps.Clone(c.ConnectorCustomer)
	return &c, nil
}

func (m *MemoryRepository) UpdateCustomerConnector(_ context.Context, merchantID, customerID, label, connectorCustomerID string) (*payout.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := merchantKey(merchantID, customerID)
	c, ok := m.customers[key]
	if !ok {
		return nil, ErrNotFound
	}
	c.ConnectorCustomer = maps.Clone(c.ConnectorCustomer)
	if c.ConnectorCustomer == nil {
		c.ConnectorCustomer = make(map[string]string)
	}
	c.ConnectorCustomer[label] = connectorCustomerID
	m.customers[key] = c
	out := c
	out.ConnectorCustomer = maps.Clone(c.ConnectorCustomer)
	return &out, nil
}

func (m *MemoryRepository) FindAddress(_ context.Context, addressID string) (*payout.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[addressID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) InsertAddress(_ context.Context, a *payout.Address) (*payout.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addresses[a.AddressID]; ok {
		return nil, ErrDuplicate
	}
	rec := *a
	m.addresses[a.AddressID] = rec
	return &rec, nil
}

func (m *MemoryRepository) FindConfig(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.configs[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryRepository) FindGsmRule(_ context.Context, key payout.GsmKey) (*payout.GsmRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.gsmRules[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}
