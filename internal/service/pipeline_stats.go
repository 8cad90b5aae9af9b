package service

import (
	"context"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// GetStats scans the current lead set and aggregates it. Nothing is cached,
// so the result always reflects the latest committed writes.
func (p *Pipeline) GetStats(ctx context.Context, filter domain.LeadFilter) (*domain.PipelineStats, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.GetStats")
	defer span.End()
	defer p.observe("stats", time.Now())

	leads, err := p.leads.ListLeads(ctx, filter)
	if err != nil {
		p.storeError("stats", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("leads.scanned", len(leads)))

	stats := domain.ComputeStats(leads, p.opts.Now(), p.opts.StaleLeadDays)
	return &stats, nil
}
