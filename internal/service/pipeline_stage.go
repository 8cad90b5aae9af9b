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

// MoveLeadStage moves a live lead to a live stage. A forward move earns
// ForwardProgressBonus on top of req.TemperatureImpact.
func (p *Pipeline) MoveLeadStage(ctx context.Context, id string, req *domain.MoveStageRequest, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.MoveLeadStage")
	defer span.End()
	defer p.observe("move_stage", time.Now())
	span.SetAttributes(attribute.String("lead.id", id), attribute.String("lead.stage.to", string(req.Stage)))

	to, err := domain.ParseStage(string(req.Stage))
	if err != nil {
		return nil, err
	}

	var from domain.Stage
	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		from = l.Stage
		switch {
		case to.IsTerminal():
			return nil, &domain.ErrInvalidTransition{From: from, To: to, Reason: "use the won or lost operation to close a lead"}
		case from.IsTerminal():
			return nil, &domain.ErrInvalidTransition{From: from, To: to, Reason: "lead is closed; reactivate it first"}
		}

		impact := domain.ClampImpact(req.TemperatureImpact)
		if domain.IsForwardMove(from, to) {
			impact = domain.ClampImpact(impact + domain.ForwardProgressBonus)
		}

		l.EnterStage(to, req.SubStage, now)
		l.ApplyTemperatureImpact(impact)

		act := newActivity(l.ID, domain.ActivityStageChange, fmt.Sprintf("Stage changed: %s → %s", from, to), actor, now)
		act.Description = req.Notes
		act.TemperatureImpact = impact
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.IncrStageTransition(from, lead.Stage)
	p.logger.Info("lead stage moved", append(observability.LeadFields(lead),
		zap.String("from_stage", string(from)),
	)...)
	return lead, nil
}

// MarkLeadWon closes the lead as won. Temperature and probability are forced to 100.
// A zero final value falls back to the quoted value, then the estimate.
func (p *Pipeline) MarkLeadWon(ctx context.Context, id string, req *domain.MarkWonRequest, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.MarkLeadWon")
	defer span.End()
	defer p.observe("mark_won", time.Now())
	span.SetAttributes(attribute.String("lead.id", id))

	if req.FinalValue.IsNegative() {
		return nil, &domain.ErrValidation{Field: "final_value", Message: "must not be negative"}
	}

	var from domain.Stage
	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		from = l.Stage

		final := req.FinalValue
		if final.IsZero() {
			final = l.EstimatedValue
			if l.QuotedValue != nil {
				final = *l.QuotedValue
			}
		}

		l.EnterStage(domain.StageWon, "", now)
		l.SetTemperature(domain.WonTemperature)
		l.FinalValue = &final
		wonAt := now
		l.WonAt = &wonAt
		l.LostAt = nil
		l.LostReason, l.LostCompetitor, l.LostNotes = "", "", ""

		act := newActivity(l.ID, domain.ActivityDealWon, "Deal won", actor, now)
		act.Description = req.Notes
		act.Outcome = fmt.Sprintf("Final value %s %s", final.StringFixed(2), l.Currency)
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.IncrStageTransition(from, domain.StageWon)
	p.metrics.IncrOutcome("won")
	p.logger.Info("lead won", append(observability.LeadFields(lead),
		zap.String("final_value", lead.FinalValue.StringFixed(2)),
	)...)
	return lead, nil
}

// MarkLeadLost closes the lead as lost. Temperature drops to the floor and probability to 0.
func (p *Pipeline) MarkLeadLost(ctx context.Context, id string, req *domain.MarkLostRequest, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.MarkLeadLost")
	defer span.End()
	defer p.observe("mark_lost", time.Now())
	span.SetAttributes(attribute.String("lead.id", id))

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, &domain.ErrValidation{Field: "reason", Message: "required"}
	}

	var from domain.Stage
	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		from = l.Stage

		l.EnterStage(domain.StageLost, "", now)
		l.SetTemperature(domain.LostTemperature)
		lostAt := now
		l.LostAt = &lostAt
		l.LostReason = reason
		l.LostCompetitor = req.Competitor
		l.LostNotes = req.Notes
		l.WonAt = nil
		l.FinalValue = nil

		act := newActivity(l.ID, domain.ActivityDealLost, "Deal lost", actor, now)
		act.Description = req.Notes
		act.Outcome = reason
		if req.Competitor != "" {
			act.Outcome = fmt.Sprintf("%s (competitor: %s)", reason, req.Competitor)
		}
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.IncrStageTransition(from, domain.StageLost)
	p.metrics.IncrOutcome("lost")
	p.logger.Info("lead lost", append(observability.LeadFields(lead),
		zap.String("reason", reason),
	)...)
	return lead, nil
}

// ReactivateLead reopens a lost lead in qualified at a fixed warm temperature.
// Any other stage is an invalid transition and leaves the lead untouched.
func (p *Pipeline) ReactivateLead(ctx context.Context, id string, actor string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ReactivateLead")
	defer span.End()
	defer p.observe("reactivate", time.Now())
	span.SetAttributes(attribute.String("lead.id", id))

	lead, err := p.mutate(ctx, id, func(l *domain.Lead, now time.Time) ([]*domain.Activity, error) {
		if l.Stage != domain.StageLost {
			return nil, &domain.ErrInvalidTransition{From: l.Stage, To: domain.StageQualified, Reason: "only lost leads can be reactivated"}
		}

		l.EnterStage(domain.StageQualified, "", now)
		l.SetTemperature(domain.ReactivatedTemperature)
		l.Probability = domain.ReactivatedProbability
		l.LostAt, l.WonAt, l.FinalValue = nil, nil, nil
		l.LostReason, l.LostCompetitor, l.LostNotes = "", "", ""

		act := newActivity(l.ID, domain.ActivityReactivation, "Lead reactivated", actor, now)
		act.TemperatureImpact = domain.ReactivationImpact
		return []*domain.Activity{act}, nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.IncrStageTransition(domain.StageLost, domain.StageQualified)
	p.metrics.IncrOutcome("reactivated")
	p.logger.Info("lead reactivated", observability.LeadFields(lead)...)
	return lead, nil
}
