package observability

import (
	"testing"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncrLeadCreated()

	if got := a.GetPipelineSnapshot("memory").LeadsCreated; got != 1 {
		t.Errorf("expected 1 lead created, got %d", got)
	}
	if got := b.GetPipelineSnapshot("memory").LeadsCreated; got != 0 {
		t.Errorf("expected isolated registry, got %d", got)
	}
}

func TestGetPipelineSnapshot(t *testing.T) {
	m := NewMetrics()

	m.IncrActivity(domain.ActivitySiteVisit)
	m.IncrActivity(domain.ActivitySiteVisit)
	m.IncrActivity(domain.ActivityDealWon)
	m.IncrStageTransition(domain.StageLead, domain.StageQualified)
	m.IncrStageTransition(domain.StageQualified, domain.StageNegotiation)
	m.IncrOutcome("won")
	m.IncrOutcome("lost")
	m.IncrOutcome("reactivated")
	m.IncrVersionConflict()
	m.IncrCacheHit("customer")
	m.IncrCacheHit("customer")
	m.IncrCacheHit("customer")
	m.IncrCacheMiss("customer")
	m.RecordOperationDuration("CreateLead", 5*time.Millisecond)
	m.ObserveTemperature(40)

	snap := m.GetPipelineSnapshot("sqlite")

	if snap.ActivitiesLogged != 3 {
		t.Errorf("expected 3 activities, got %d", snap.ActivitiesLogged)
	}
	if snap.ActivitiesByType["site_visit"] != 2 {
		t.Errorf("expected 2 site visits, got %d", snap.ActivitiesByType["site_visit"])
	}
	if snap.StageTransitions != 2 {
		t.Errorf("expected 2 transitions, got %d", snap.StageTransitions)
	}
	if snap.DealsWon != 1 || snap.DealsLost != 1 || snap.Reactivations != 1 {
		t.Errorf("unexpected outcomes: %+v", snap)
	}
	if snap.VersionConflicts != 1 {
		t.Errorf("expected 1 conflict, got %d", snap.VersionConflicts)
	}
	if snap.CacheHitRate != 0.75 {
		t.Errorf("expected hit rate 0.75, got %f", snap.CacheHitRate)
	}
	if snap.StoreBackend != "sqlite" {
		t.Errorf("expected backend sqlite, got %s", snap.StoreBackend)
	}
}

func TestLeadFields(t *testing.T) {
	fields := LeadFields(&domain.Lead{ID: "l-1", Stage: domain.StageLead})
	if len(fields) != 7 {
		t.Fatalf("expected 7 fields, got %d", len(fields))
	}
	if fields[0].Key != "lead_id" || fields[0].String != "l-1" {
		t.Errorf("unexpected first field: %+v", fields[0])
	}
}
