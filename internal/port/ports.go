// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

// LeadStore persists leads and their activity log.
// Implemented by the memory, sqlite, postgres and supabase adapters.
//
// Writes are compare-and-swap on Lead.Version: SaveLead only commits when the
// stored version equals expectedVersion, and returns *domain.ErrConflict otherwise.
// On success the store increments lead.Version in place.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error)

	// CreateLead inserts a new lead and its creation activity atomically.
	CreateLead(ctx context.Context, lead *domain.Lead, created *domain.Activity) error

	// SaveLead writes the lead and appends activities in one transaction.
	SaveLead(ctx context.Context, lead *domain.Lead, expectedVersion int, activities ...*domain.Activity) error

	// ListActivities returns the lead's activities, newest first.
	ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error)

	// NextLeadSequence atomically reserves the next lead number.
	NextLeadSequence(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// CustomerStore reads customer reference data.
type CustomerStore interface {
	// GetCustomers resolves ids in bulk. Unknown ids are absent from the map.
	GetCustomers(ctx context.Context, ids []string) (map[string]*domain.Customer, error)
	SaveCustomer(ctx context.Context, c *domain.Customer) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
