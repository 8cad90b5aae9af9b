package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Lead store (implements port.LeadStore)
// ============================================================

// leadRecord mirrors the leads table. No omitempty: jsonb_populate_record
// turns missing keys into NULL, which NOT NULL columns reject.
type leadRecord struct {
	ID                 string           `json:"id"`
	LeadNumber         string           `json:"lead_number"`
	ProjectName        string           `json:"project_name"`
	DealType           string           `json:"deal_type"`
	Source             string           `json:"source"`
	Stage              string           `json:"stage"`
	SubStage           string           `json:"sub_stage"`
	StageEnteredAt     time.Time        `json:"stage_entered_at"`
	Temperature        int              `json:"temperature"`
	TemperatureStatus  string           `json:"temperature_status"`
	Probability        int              `json:"probability"`
	EstimatedValue     decimal.Decimal  `json:"estimated_value"`
	QuotedValue        *decimal.Decimal `json:"quoted_value"`
	FinalValue         *decimal.Decimal `json:"final_value"`
	Currency           string           `json:"currency"`
	WonAt              *time.Time       `json:"won_at"`
	LostAt             *time.Time       `json:"lost_at"`
	LostReason         string           `json:"lost_reason"`
	LostCompetitor     string           `json:"lost_competitor"`
	LostNotes          string           `json:"lost_notes"`
	AssignedTo         string           `json:"assigned_to"`
	CreatedBy          string           `json:"created_by"`
	CustomerID         string           `json:"customer_id"`
	CanvassingReportID string           `json:"canvassing_report_id"`
	ContactName        string           `json:"contact_name"`
	ContactPhone       string           `json:"contact_phone"`
	Location           string           `json:"location"`
	Notes              string           `json:"notes"`
	ExpectedCloseDate  *time.Time       `json:"expected_close_date"`
	Version            int              `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type activityRecord struct {
	ID                string     `json:"id"`
	LeadID            string     `json:"lead_id"`
	Type              string     `json:"type"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Outcome           string     `json:"outcome"`
	NextAction        string     `json:"next_action"`
	NextActionDate    *time.Time `json:"next_action_date"`
	TemperatureImpact int        `json:"temperature_impact"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toLeadRecord(l *domain.Lead) leadRecord {
	return leadRecord{
		ID:                 l.ID,
		LeadNumber:         l.LeadNumber,
		ProjectName:        l.ProjectName,
		DealType:           string(l.DealType),
		Source:             l.Source,
		Stage:              string(l.Stage),
		SubStage:           l.SubStage,
		StageEnteredAt:     l.StageEnteredAt,
		Temperature:        l.Temperature,
		TemperatureStatus:  string(l.TemperatureStatus),
		Probability:        l.Probability,
		EstimatedValue:     l.EstimatedValue,
		QuotedValue:        l.QuotedValue,
		FinalValue:         l.FinalValue,
		Currency:           l.Currency,
		WonAt:              l.WonAt,
		LostAt:             l.LostAt,
		LostReason:         l.LostReason,
		LostCompetitor:     l.LostCompetitor,
		LostNotes:          l.LostNotes,
		AssignedTo:         l.AssignedTo,
		CreatedBy:          l.CreatedBy,
		CustomerID:         l.CustomerID,
		CanvassingReportID: l.CanvassingReportID,
		ContactName:        l.ContactName,
		ContactPhone:       l.ContactPhone,
		Location:           l.Location,
		Notes:              l.Notes,
		ExpectedCloseDate:  l.ExpectedCloseDate,
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func (r leadRecord) toDomain() *domain.Lead {
	l := &domain.Lead{
		ID:                 r.ID,
		LeadNumber:         r.LeadNumber,
		ProjectName:        r.ProjectName,
		DealType:           domain.DealType(r.DealType),
		Source:             r.Source,
		Stage:              domain.Stage(r.Stage),
		SubStage:           r.SubStage,
		StageEnteredAt:     r.StageEnteredAt,
		Temperature:        r.Temperature,
		TemperatureStatus:  domain.TemperatureStatus(r.TemperatureStatus),
		Probability:        r.Probability,
		EstimatedValue:     r.EstimatedValue,
		QuotedValue:        r.QuotedValue,
		FinalValue:         r.FinalValue,
		Currency:           r.Currency,
		WonAt:              r.WonAt,
		LostAt:             r.LostAt,
		LostReason:         r.LostReason,
		LostCompetitor:     r.LostCompetitor,
		LostNotes:          r.LostNotes,
		AssignedTo:         r.AssignedTo,
		CreatedBy:          r.CreatedBy,
		CustomerID:         r.CustomerID,
		CanvassingReportID: r.CanvassingReportID,
		ContactName:        r.ContactName,
		ContactPhone:       r.ContactPhone,
		Location:           r.Location,
		Notes:              r.Notes,
		ExpectedCloseDate:  r.ExpectedCloseDate,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	return l
}

func toActivityRecord(a *domain.Activity) activityRecord {
	return activityRecord{
		ID:                a.ID,
		LeadID:            a.LeadID,
		Type:              string(a.Type),
		Title:             a.Title,
		Description:       a.Description,
		Outcome:           a.Outcome,
		NextAction:        a.NextAction,
		NextActionDate:    a.NextActionDate,
		TemperatureImpact: a.TemperatureImpact,
		CreatedBy:         a.CreatedBy,
		CreatedAt:         a.CreatedAt,
	}
}

func (r activityRecord) toDomain() domain.Activity {
	return domain.Activity{
		ID:                r.ID,
		LeadID:            r.LeadID,
		Type:              domain.ActivityType(r.Type),
		Title:             r.Title,
		Description:       r.Description,
		Outcome:           r.Outcome,
		NextAction:        r.NextAction,
		NextActionDate:    r.NextActionDate,
		TemperatureImpact: r.TemperatureImpact,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
	}
}

// wrapErr maps transport failures onto domain errors.
// PostgREST turns RAISE ... USING ERRCODE 'PT409' into HTTP 409.
func wrapErr(service string, err error) error {
	if err == nil {
		return nil
	}
	var (
		co *domain.ErrCircuitOpen
		nf *domain.ErrNotFound
		ae *apiError
	)
	switch {
	case errors.As(err, &co), errors.As(err, &nf):
		return err
	case errors.As(err, &ae) && ae.Status == http.StatusConflict:
		return &domain.ErrConflict{Message: extractMessage(ae.Body)}
	case errors.As(err, &ae) && ae.Status == http.StatusNotFound:
		return &domain.ErrNotFound{Resource: "lead", ID: extractMessage(ae.Body)}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

// extractMessage pulls "message" out of a PostgREST error body.
func extractMessage(body string) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &e); err == nil && e.Message != "" {
		return e.Message
	}
	return body
}

// GetLead fetches one lead by id.
func (c *Client) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	var lead *domain.Lead
	err := c.guard.Do(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("leads?id=eq.%s&limit=1", url.QueryEscape(id)))
		if err != nil {
			return err
		}
		var rows []leadRecord
		if len(body) > 0 {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode lead: %w", err)
			}
		}
		if len(rows) > 0 {
			lead = rows[0].toDomain()
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/leads", err)
	}
	if lead == nil {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	return lead, nil
}

// leadQuery renders a LeadFilter as PostgREST query parameters.
func leadQuery(f domain.LeadFilter) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	if f.Stage != "" {
		q.Add("stage", "eq."+string(f.Stage))
	}
	if f.ActiveOnly {
		q.Add("stage", "not.in.(won,lost)")
	}
	if f.DealType != "" {
		q.Set("deal_type", "eq."+string(f.DealType))
	}
	if f.Status != "" {
		q.Set("temperature_status", "eq."+string(f.Status))
	}
	if f.AssignedTo != "" {
		q.Set("assigned_to", "eq."+f.AssignedTo)
	}
	if f.CustomerID != "" {
		q.Set("customer_id", "eq."+f.CustomerID)
	}
	if f.Source != "" {
		q.Set("source", "ilike."+f.Source)
	}
	if text := strings.TrimSpace(f.Query); text != "" {
		text = strings.ReplaceAll(text, `"`, "")
		var parts []string
		for _, col := range []string{"project_name", "lead_number", "contact_name"} {
			parts = append(parts, fmt.Sprintf(`%s.ilike."*%s*"`, col, text))
		}
		q.Set("or", "("+strings.Join(parts, ",")+")")
	}
	q.Set("order", "created_at.desc,lead_number.desc")
	return q
}

// ListLeads lists leads matching filter, newest first.
func (c *Client) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	leads := []*domain.Lead{}
	err := c.guard.Do(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "leads?"+leadQuery(filter).Encode())
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return nil
		}
		var rows []leadRecord
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("failed to decode leads: %w", err)
		}
		leads = make([]*domain.Lead, 0, len(rows))
		for _, r := range rows {
			leads = append(leads, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/leads", err)
	}
	return leads, nil
}

// CreateLead inserts lead and its creation activity through pipeline_create_lead.
func (c *Client) CreateLead(ctx context.Context, lead *domain.Lead, created *domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	rec := toLeadRecord(lead)
	rec.Version = 1
	args := map[string]any{"p_lead": rec, "p_activity": nil}
	if created != nil {
		args["p_activity"] = toActivityRecord(created)
	}

	err := c.guard.Do(ctx, func() error {
		_, err := c.doRPC(ctx, "pipeline_create_lead", args)
		return err
	})
	if err != nil {
		return wrapErr("supabase/rpc", err)
	}
	lead.Version = 1
	return nil
}

// SaveLead runs the version compare-and-swap in pipeline_save_lead.
func (c *Client) SaveLead(ctx context.Context, lead *domain.Lead, expectedVersion int, activities ...*domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID), attribute.Int("lead.version", expectedVersion))

	acts := make([]activityRecord, 0, len(activities))
	for _, a := range activities {
		acts = append(acts, toActivityRecord(a))
	}
	args := map[string]any{
		"p_lead":             toLeadRecord(lead),
		"p_expected_version": expectedVersion,
		"p_activities":       acts,
	}

	var newVersion int
	err := c.guard.Do(ctx, func() error {
		body, err := c.doRPC(ctx, "pipeline_save_lead", args)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &newVersion)
	})
	if err != nil {
		err = wrapErr("supabase/rpc", err)
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			nf.ID = lead.ID
		}
		return err
	}
	lead.Version = newVersion
	return nil
}

// ListActivities returns the lead's activity log, newest first.
func (c *Client) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	if _, err := c.GetLead(ctx, leadID); err != nil {
		return nil, err
	}

	out := []domain.Activity{}
	err := c.guard.Do(ctx, func() error {
		path := fmt.Sprintf("lead_activities?lead_id=eq.%s&order=created_at.desc,id.desc", url.QueryEscape(leadID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return nil
		}
		var rows []activityRecord
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("failed to decode activities: %w", err)
		}
		out = make([]domain.Activity, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/lead_activities", err)
	}
	return out, nil
}

// NextLeadSequence reserves the next number via pipeline_next_lead_sequence.
func (c *Client) NextLeadSequence(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Supabase.NextLeadSequence")
	defer span.End()

	var n int64
	err := c.guard.Do(ctx, func() error {
		body, err := c.doRPC(ctx, "pipeline_next_lead_sequence", map[string]any{})
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &n)
	})
	if err != nil {
		return 0, wrapErr("supabase/rpc", err)
	}
	return n, nil
}

// Ping checks PostgREST reachability without the retry loop.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "leads?select=id&limit=1")
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	return nil
}
