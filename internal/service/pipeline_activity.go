package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LogActivity appends an activity and applies its temperature impact in the same write.
// It returns the new activity and the lead as committed.
func (p *Pipeline) LogActivity(ctx context.Context, id string, req *domain.LogActivityRequest, actor string) (*domain.Activity, *domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.LogActivity")
	defer span.End()
	defer p.observe("log_activity", time.Now())
	span.SetAttributes(attribute.String("lead.id", id), attribute.String("activity.type", string(req.Type)))

	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	var act *domain.Activity
	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		impact := req.Impact()

		act = newActivity(l.ID, req.Type, strings.TrimSpace(req.Title), actor, now)
		act.Description = req.Description
		act.Outcome = req.Outcome
		act.NextAction = req.NextAction
		act.NextActionDate = req.NextActionDate
		act.TemperatureImpact = impact

		if impact != 0 {
			l.ApplyTemperatureImpact(impact)
		}
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Info("activity logged", append(observability.LeadFields(lead),
		zap.String("activity_type", string(act.Type)),
		zap.Int("temperature_impact", act.TemperatureImpact),
	)...)
	return act, lead, nil
}

// ListActivities returns the lead's activity log, newest first.
func (p *Pipeline) ListActivities(ctx context.Context, id string) ([]domain.Activity, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	acts, err := p.leads.ListActivities(ctx, id)
	if err != nil {
		p.storeError("list_activities", err)
		return nil, err
	}
	return acts, nil
}

// UpdateLeadTemperature applies either an activity type's table impact or an explicit delta.
// Only the explicit delta is audited, as one temperature_adjusted activity.
func (p *Pipeline) UpdateLeadTemperature(ctx context.Context, id string, req *domain.TemperatureUpdateRequest, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.UpdateLeadTemperature")
	defer span.End()
	defer p.observe("update_temperature", time.Now())
	span.SetAttributes(attribute.String("lead.id", id))

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ActivityType.IsSystem() {
		return nil, &domain.ErrValidation{Field: "activity_type", Message: fmt.Sprintf("'%s' is reserved for the pipeline", req.ActivityType)}
	}

	var before int
	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		before = l.Temperature
		if req.Adjustment == nil {
			l.ApplyTemperatureImpact(req.ActivityType.TemperatureImpact())
			return nil, nil
		}

		delta := domain.ClampImpact(*req.Adjustment)
		l.ApplyTemperatureImpact(delta)

		act := newActivity(l.ID, domain.ActivityTemperatureAdjusted, fmt.Sprintf("Temperature adjusted by %+d", delta), actor, now)
		act.Description = req.Reason
		act.TemperatureImpact = delta
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("lead temperature updated", append(observability.LeadFields(lead),
		zap.Int("previous_temperature", before),
	)...)
	return lead, nil
}
