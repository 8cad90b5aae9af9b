package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/storetest"
	"github.com/boddenberg/coatings-pipeline-go/internal/port"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LeadStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.LeadStore { return newTestStore(t) })
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_ReopenKeepsSequence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pipeline.db")

	s, err := Open(path)
	require.NoError(t, err)
	n, err := s.NextLeadSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err = s.NextLeadSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_DuplicateLeadNumber(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := storetest.NewLead(7, "A", domain.StageLead, domain.DealTypeApply)
	b := storetest.NewLead(7, "B", domain.StageLead, domain.DealTypeApply)
	require.NoError(t, s.CreateLead(ctx, a, nil))

	err := s.CreateLead(ctx, b, nil)
	var ce *domain.ErrConflict
	assert.ErrorAs(t, err, &ce)
}

func TestStore_Customers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme", City: "Leeds"}))
	require.NoError(t, s.SaveCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme Ltd", City: "York"}))
	require.NoError(t, s.SaveCustomer(ctx, &domain.Customer{ID: "c2", Name: "Beta"}))

	got, err := s.GetCustomers(ctx, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme Ltd", got["c1"].Name)
	assert.Equal(t, "York", got["c1"].City)

	empty, err := s.GetCustomers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
