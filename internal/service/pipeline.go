package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/coatings-pipeline-go/internal/port"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/pipeline")

const (
	systemActor = "system"

	// customerBatchSize bounds one GetCustomers call (PostgREST in.(...) lists travel in the URL).
	customerBatchSize = 50
)

// Options tunes the pipeline engine.
type Options struct {
	StaleLeadDays   int
	DefaultCurrency string
	// Backend names the store in metrics snapshots and health output.
	Backend string
	// Now is the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Pipeline is the lead temperature / stage engine.
// Mutations are serialized by mu; the store's version check catches writers in other processes.
type Pipeline struct {
	leads     port.LeadStore
	customers port.CustomerStore
	cache     *cache.InMemory[*domain.Customer]
	metrics   *observability.Metrics
	logger    *zap.Logger
	opts      Options

	mu sync.Mutex
}

// NewPipeline creates the pipeline service with all dependencies injected.
// customers may be nil, in which case leads are returned without a resolved customer.
func NewPipeline(
	leads port.LeadStore,
	customers port.CustomerStore,
	customerCache *cache.InMemory[*domain.Customer],
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Pipeline {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if opts.StaleLeadDays <= 0 {
		opts.StaleLeadDays = 30
	}
	if opts.Backend == "" {
		opts.Backend = "memory"
	}
	return &Pipeline{
		leads:     leads,
		customers: customers,
		cache:     customerCache,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
	}
}

// CreateLead opens a new lead in stage "lead" at temperature 0 and logs lead_created.
func (p *Pipeline) CreateLead(ctx context.Context, req *domain.CreateLeadRequest, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.CreateLead")
	defer span.End()
	defer p.observe("create_lead", time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	p.mu.Lock()
	defer p.mu.Unlock()

	seq, err := p.leads.NextLeadSequence(ctx)
	if err != nil {
		p.storeError("next_lead_sequence", err)
		return nil, err
	}

	now := p.opts.Now()
	currency := req.Currency
	if currency == "" {
		currency = p.opts.DefaultCurrency
	}
	assigned := req.AssignedTo
	if assigned == "" {
		assigned = actor
	}

	lead := &domain.Lead{
		ID:                 uuid.NewString(),
		LeadNumber:         domain.FormatLeadNumber(now, seq),
		ProjectName:        req.ProjectName,
		DealType:           req.DealType,
		Source:             req.Source,
		Stage:              domain.StageLead,
		SubStage:           req.SubStage,
		StageEnteredAt:     now,
		EstimatedValue:     req.EstimatedValue,
		Currency:           currency,
		AssignedTo:         assigned,
		CreatedBy:          actor,
		CustomerID:         req.CustomerID,
		CanvassingReportID: req.CanvassingReportID,
		ContactName:        req.ContactName,
		ContactPhone:       req.ContactPhone,
		Location:           req.Location,
		Notes:              req.Notes,
		ExpectedCloseDate:  req.ExpectedCloseDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	lead.SetTemperature(0)

	created := newActivity(lead.ID, domain.ActivityLeadCreated, "Lead created", actor, now)
	created.Description = fmt.Sprintf("Lead %s opened for %s", lead.LeadNumber, lead.ProjectName)

	if err := p.leads.CreateLead(ctx, lead, created); err != nil {
		p.storeError("create_lead", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("lead.id", lead.ID))
	p.metrics.IncrLeadCreated()
	p.metrics.IncrActivity(created.Type)
	p.metrics.ObserveTemperature(lead.Temperature)
	p.logger.Info("lead created", append(observability.LeadFields(lead), zap.String("actor", actor))...)
	return lead, nil
}

// GetLead returns the lead with days_in_stage and its customer.
func (p *Pipeline) GetLead(ctx context.Context, id string) (*domain.LeadView, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	lead, err := p.leads.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	views := p.enrich(ctx, []*domain.Lead{lead})
	return &views[0], nil
}

// ListLeads filters, paginates and enriches leads. Page is 1-based; pageSize <= 0 returns everything.
func (p *Pipeline) ListLeads(ctx context.Context, filter domain.LeadFilter, page, pageSize int) (domain.ListResponse[domain.LeadView], error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ListLeads")
	defer span.End()
	defer p.observe("list_leads", time.Now())

	leads, err := p.leads.ListLeads(ctx, filter)
	if err != nil {
		p.storeError("list_leads", err)
		return domain.ListResponse[domain.LeadView]{}, err
	}
	span.SetAttributes(attribute.Int("leads.matched", len(leads)))

	paged := domain.NewListResponse(leads, page, pageSize)
	return domain.ListResponse[domain.LeadView]{
		Data:     p.enrich(ctx, paged.Data),
		Total:    paged.Total,
		Page:     paged.Page,
		PageSize: paged.PageSize,
		HasMore:  paged.HasMore,
	}, nil
}

// UpdateLead applies a partial update to descriptive and commercial fields.
func (p *Pipeline) UpdateLead(ctx context.Context, id string, req *domain.UpdateLeadRequest) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.UpdateLead")
	defer span.End()
	defer p.observe("update_lead", time.Now())

	lead, err := p.mutate(ctx, id, func(l *domain.Lead, _ time.Time) ([]*domain.Activity, error) {
		return nil, req.Apply(l)
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("lead updated", observability.LeadFields(lead)...)
	return lead, nil
}

// mutateFunc changes l in place and returns the activities to append with the write.
type mutateFunc func(l *domain.Lead, now time.Time) ([]*domain.Activity, error)

// mutate is the single read-modify-write path. The lead and its activities
// are committed together, guarded by the version read here.
func (p *Pipeline) mutate(ctx context.Context, id string, fn mutateFunc) (*domain.Lead, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.leads.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	lead := current.Clone()
	now := p.opts.Now()
	activities, err := fn(lead, now)
	if err != nil {
		return nil, err
	}
	lead.UpdatedAt = now

	if err := p.leads.SaveLead(ctx, lead, current.Version, activities...); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			p.metrics.IncrVersionConflict()
			p.logger.Warn("stale lead write rejected",
				zap.String("lead_id", id),
				zap.Int("expected_version", current.Version),
			)
			return nil, err
		}
		p.storeError("save_lead", err)
		return nil, err
	}

	for _, a := range activities {
		p.metrics.IncrActivity(a.Type)
	}
	if lead.Temperature != current.Temperature {
		p.metrics.ObserveTemperature(lead.Temperature)
	}
	return lead, nil
}

// enrich resolves customers for leads and computes days_in_stage.
// Customer lookup failures degrade to a nil customer.
func (p *Pipeline) enrich(ctx context.Context, leads []*domain.Lead) []domain.LeadView {
	now := p.opts.Now()
	views := make([]domain.LeadView, len(leads))

	ids := make([]string, 0, len(leads))
	seen := make(map[string]bool, len(leads))
	for _, l := range leads {
		if l.CustomerID != "" && !seen[l.CustomerID] {
			seen[l.CustomerID] = true
			ids = append(ids, l.CustomerID)
		}
	}

	customers, err := p.resolveCustomers(ctx, ids)
	if err != nil {
		p.logger.Warn("customer enrichment failed", zap.Int("customers", len(ids)), zap.Error(err))
	}

	for i, l := range leads {
		views[i] = domain.LeadView{
			Lead:        *l,
			DaysInStage: l.DaysInStage(now),
			Customer:    customers[l.CustomerID],
		}
	}
	return views
}

// resolveCustomers serves ids from the cache and fetches misses in concurrent batches.
func (p *Pipeline) resolveCustomers(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	out := make(map[string]*domain.Customer, len(ids))
	if len(ids) == 0 || p.customers == nil {
		return out, nil
	}

	misses := ids
	if p.cache != nil {
		var hits map[string]*domain.Customer
		hits, misses = p.cache.GetMany(ids)
		for id, c := range hits {
			out[id] = c
			p.metrics.IncrCacheHit("customer")
		}
		for range misses {
			p.metrics.IncrCacheMiss("customer")
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(misses); start += customerBatchSize {
		end := min(start+customerBatchSize, len(misses))
		batch := misses[start:end]
		g.Go(func() error {
			found, err := p.customers.GetCustomers(gCtx, batch)
			if err != nil {
				return fmt.Errorf("customer fetch: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for id, c := range found {
				out[id] = c
				if p.cache != nil {
					p.cache.Set(id, c)
				}
			}
			return nil
		})
	}
	return out, g.Wait()
}

type pinger interface {
	Ping(ctx context.Context) error
}

type healthCheck struct {
	name string
	ping func(context.Context) error
}

// Health pings the lead and customer stores concurrently.
func (p *Pipeline) Health(ctx context.Context) domain.HealthStatus {
	ctx, span := tracer.Start(ctx, "Pipeline.Health")
	defer span.End()

	checks := []healthCheck{{name: "store/" + p.opts.Backend, ping: p.leads.Ping}}
	if c, ok := p.customers.(pinger); ok && any(p.customers) != any(p.leads) {
		checks = append(checks, healthCheck{name: "customers", ping: c.Ping})
	}

	results := make([]domain.ServiceHealth, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			err := c.ping(ctx)
			h := domain.ServiceHealth{
				Name:        c.name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: p.opts.Now().Format(time.RFC3339),
			}
			if err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	status := "healthy"
	for _, r := range results {
		if r.Status != "healthy" {
			status = "unhealthy"
		}
	}
	return domain.HealthStatus{Status: status, Services: results}
}

// MetricsSnapshot returns the counters behind GET /v1/metrics/pipeline.
func (p *Pipeline) MetricsSnapshot() *domain.PipelineMetrics {
	return p.metrics.GetPipelineSnapshot(p.opts.Backend)
}

func (p *Pipeline) observe(operation string, start time.Time) {
	p.metrics.RecordOperationDuration(operation, time.Since(start))
}

func (p *Pipeline) storeError(operation string, err error) {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return
	}
	p.metrics.IncrStoreError(p.opts.Backend)
	p.logger.Error("store operation failed",
		zap.String("operation", operation),
		zap.String("backend", p.opts.Backend),
		zap.Error(err),
	)
}

func newActivity(leadID string, typ domain.ActivityType, title, actor string, at time.Time) *domain.Activity {
	return &domain.Activity{
		ID:        ulid.Make().String(),
		LeadID:    leadID,
		Type:      typ,
		Title:     title,
		CreatedBy: actorOrSystem(actor),
		CreatedAt: at,
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return systemActor
	}
	return actor
}
