// Package storetest holds the behaviour every port.LeadStore adapter must share.
// Adapter packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/port"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) port.LeadStore

// Run executes the shared LeadStore suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SaveBumpsVersion", func(t *testing.T) { testSaveBumpsVersion(t, newStore(t)) })
	t.Run("StaleSaveConflicts", func(t *testing.T) { testStaleSaveConflicts(t, newStore(t)) })
	t.Run("ActivitiesNewestFirst", func(t *testing.T) { testActivitiesNewestFirst(t, newStore(t)) })
	t.Run("ActivitiesMissingLead", func(t *testing.T) { testActivitiesMissingLead(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("SequenceUnique", func(t *testing.T) { testSequenceUnique(t, newStore(t)) })
}

// NewLead builds a minimal valid lead with a fresh id.
func NewLead(seq int64, project string, stage domain.Stage, deal domain.DealType) *domain.Lead {
	now := time.Now().UTC().Truncate(time.Millisecond)
	l := &domain.Lead{
		ID:             uuid.NewString(),
		LeadNumber:     domain.FormatLeadNumber(now, seq),
		ProjectName:    project,
		DealType:       deal,
		Stage:          stage,
		StageEnteredAt: now,
		EstimatedValue: decimal.RequireFromString("1500.25"),
		Currency:       "USD",
		CreatedBy:      "rep-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.SetTemperature(0)
	return l
}

// NewActivity builds an activity for leadID.
func NewActivity(leadID string, typ domain.ActivityType, at time.Time) *domain.Activity {
	return &domain.Activity{
		ID:                ulid.Make().String(),
		LeadID:            leadID,
		Type:              typ,
		Title:             string(typ),
		TemperatureImpact: typ.TemperatureImpact(),
		CreatedBy:         "rep-1",
		CreatedAt:         at.UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndGet(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	l := NewLead(1, "Harbour Warehouse", domain.StageLead, domain.DealTypeSupply)
	l.CustomerID = "cust-1"
	l.ContactName = "Dana"
	quoted := decimal.RequireFromString("1999.99")
	l.QuotedValue = &quoted

	require.NoError(t, s.CreateLead(ctx, l, NewActivity(l.ID, domain.ActivityLeadCreated, l.CreatedAt)))
	assert.Equal(t, 1, l.Version)

	got, err := s.GetLead(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.LeadNumber, got.LeadNumber)
	assert.Equal(t, "Harbour Warehouse", got.ProjectName)
	assert.Equal(t, domain.StageLead, got.Stage)
	assert.Equal(t, domain.StatusCold, got.TemperatureStatus)
	assert.Equal(t, 12, got.Probability)
	assert.True(t, got.EstimatedValue.Equal(decimal.RequireFromString("1500.25")))
	require.NotNil(t, got.QuotedValue)
	assert.True(t, got.QuotedValue.Equal(quoted))
	assert.Nil(t, got.FinalValue)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, "Dana", got.ContactName)
	assert.Equal(t, 1, got.Version)
	assert.True(t, l.StageEnteredAt.Equal(got.StageEnteredAt))

	acts, err := s.ListActivities(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityLeadCreated, acts[0].Type)
}

func testGetMissing(t *testing.T, s port.LeadStore) {
	_, err := s.GetLead(context.Background(), uuid.NewString())
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf), "expected ErrNotFound, got %v", err)
}

func testSaveBumpsVersion(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	l := NewLead(1, "Bridge Deck", domain.StageLead, domain.DealTypeApply)
	require.NoError(t, s.CreateLead(ctx, l, nil))

	l.ApplyTemperatureImpact(30)
	now := time.Now()
	l.WonAt = &now
	require.NoError(t, s.SaveLead(ctx, l, 1, NewActivity(l.ID, domain.ActivitySiteVisit, time.Now())))
	assert.Equal(t, 2, l.Version)

	got, err := s.GetLead(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Temperature)
	assert.Equal(t, domain.StatusWarm, got.TemperatureStatus)
	assert.Equal(t, 2, got.Version)
	assert.NotNil(t, got.WonAt)

	acts, err := s.ListActivities(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func testStaleSaveConflicts(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	l := NewLead(1, "Tank Farm", domain.StageLead, domain.DealTypeSupply)
	require.NoError(t, s.CreateLead(ctx, l, nil))

	first, err := s.GetLead(ctx, l.ID)
	require.NoError(t, err)
	second, err := s.GetLead(ctx, l.ID)
	require.NoError(t, err)

	first.ApplyTemperatureImpact(10)
	require.NoError(t, s.SaveLead(ctx, first, first.Version))

	second.ApplyTemperatureImpact(-5)
	err = s.SaveLead(ctx, second, second.Version, NewActivity(l.ID, domain.ActivityNoResponse, time.Now()))
	var ce *domain.ErrConflict
	require.True(t, errors.As(err, &ce), "expected ErrConflict, got %v", err)

	got, err := s.GetLead(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Temperature)

	acts, err := s.ListActivities(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, acts, "rejected write must not append activities")
}

func testActivitiesNewestFirst(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	l := NewLead(1, "School Gym", domain.StageLead, domain.DealTypeApply)
	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateLead(ctx, l, NewActivity(l.ID, domain.ActivityLeadCreated, base)))

	types := []domain.ActivityType{domain.ActivityPhoneCall, domain.ActivitySiteVisit, domain.ActivityQuoteSent}
	for i, typ := range types {
		require.NoError(t, s.SaveLead(ctx, l, l.Version, NewActivity(l.ID, typ, base.Add(time.Duration(i+1)*time.Minute))))
	}

	acts, err := s.ListActivities(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, acts, 4)
	assert.Equal(t, domain.ActivityQuoteSent, acts[0].Type)
	assert.Equal(t, domain.ActivitySiteVisit, acts[1].Type)
	assert.Equal(t, domain.ActivityPhoneCall, acts[2].Type)
	assert.Equal(t, domain.ActivityLeadCreated, acts[3].Type)
	assert.Equal(t, 30, acts[1].TemperatureImpact)
}

func testActivitiesMissingLead(t *testing.T, s port.LeadStore) {
	_, err := s.ListActivities(context.Background(), uuid.NewString())
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf), "expected ErrNotFound, got %v", err)
}

func testListFilters(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	a := NewLead(1, "Harbour Warehouse Roof", domain.StageQualified, domain.DealTypeSupply)
	a.AssignedTo = "rep-1"
	a.Source = "canvassing"
	b := NewLead(2, "City Bridge", domain.StageNegotiation, domain.DealTypeApply)
	b.AssignedTo = "rep-2"
	b.SetTemperature(60)
	c := NewLead(3, "Old Mill", domain.StageLost, domain.DealTypeSupplyApply)
	c.AssignedTo = "rep-1"
	for _, l := range []*domain.Lead{a, b, c} {
		require.NoError(t, s.CreateLead(ctx, l, nil))
	}

	count := func(f domain.LeadFilter) int {
		out, err := s.ListLeads(ctx, f)
		require.NoError(t, err)
		return len(out)
	}

	assert.Equal(t, 3, count(domain.LeadFilter{}))
	assert.Equal(t, 1, count(domain.LeadFilter{Stage: domain.StageNegotiation}))
	assert.Equal(t, 1, count(domain.LeadFilter{DealType: domain.DealTypeSupply}))
	assert.Equal(t, 1, count(domain.LeadFilter{Status: domain.StatusHot}))
	assert.Equal(t, 2, count(domain.LeadFilter{AssignedTo: "rep-1"}))
	assert.Equal(t, 1, count(domain.LeadFilter{AssignedTo: "rep-1", ActiveOnly: true}))
	assert.Equal(t, 1, count(domain.LeadFilter{Source: "canvassing"}))
	assert.Equal(t, 1, count(domain.LeadFilter{Query: "warehouse"}))
	assert.Equal(t, 0, count(domain.LeadFilter{Query: "stadium"}))
}

func testSequenceUnique(t *testing.T, s port.LeadStore) {
	ctx := context.Background()
	const workers, perWorker = 8, 10

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
		errs = make(chan error, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n, err := s.NextLeadSequence(ctx)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				if seen[n] {
					errs <- fmt.Errorf("duplicate sequence %d", n)
				}
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, seen, workers*perWorker)
}
