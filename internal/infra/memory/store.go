// Package memory is an in-process LeadStore and CustomerStore for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

// Store keeps leads, activities and customers in maps guarded by one RWMutex.
// Values are cloned on the way in and out so callers never share memory with the store.
type Store struct {
	mu         sync.RWMutex
	leads      map[string]*domain.Lead
	activities map[string][]domain.Activity
	customers  map[string]*domain.Customer
	seq        int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		leads:      make(map[string]*domain.Lead),
		activities: make(map[string][]domain.Activity),
		customers:  make(map[string]*domain.Customer),
	}
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	return l.Clone(), nil
}

// ListLeads returns matching leads, newest first.
func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if filter.Matches(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LeadNumber > out[j].LeadNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead, created *domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[lead.ID]; exists {
		return &domain.ErrConflict{Message: "lead already exists: " + lead.ID}
	}
	for _, l := range s.leads {
		if l.LeadNumber == lead.LeadNumber {
			return &domain.ErrConflict{Message: "lead number already taken: " + lead.LeadNumber}
		}
	}

	lead.Version = 1
	s.leads[lead.ID] = lead.Clone()
	if created != nil {
		s.activities[lead.ID] = append(s.activities[lead.ID], *created)
	}
	return nil
}

func (s *Store) SaveLead(ctx context.Context, lead *domain.Lead, expectedVersion int, activities ...*domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leads[lead.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "lead", ID: lead.ID}
	}
	if current.Version != expectedVersion {
		return domain.NewVersionConflict(lead.ID, expectedVersion)
	}

	lead.Version = expectedVersion + 1
	s.leads[lead.ID] = lead.Clone()
	for _, a := range activities {
		s.activities[lead.ID] = append(s.activities[lead.ID], *a)
	}
	return nil
}

// ListActivities returns the log newest first. ULIDs break timestamp ties.
func (s *Store) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.leads[leadID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	out := append([]domain.Activity(nil), s.activities[leadID]...)
	if out == nil {
		out = []domain.Activity{}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) NextLeadSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetCustomers(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.Customer, len(ids))
	for _, id := range ids {
		if c, ok := s.customers[id]; ok {
			cp := *c
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		return &domain.ErrValidation{Field: "id", Message: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}
