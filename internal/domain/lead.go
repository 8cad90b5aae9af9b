// Package domain defines the core business entities of the sales pipeline.
// These models are independent of persistence and transport and hold the
// deterministic scoring rules (temperature, stage order, probability).
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Stage
// ============================================================

// Stage is the lead's position in the pipeline.
type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageNegotiation Stage = "negotiation"
	StageClosing     Stage = "closing"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// AllStages lists every stage in pipeline order, terminal stages last.
var AllStages = []Stage{StageLead, StageQualified, StageNegotiation, StageClosing, StageWon, StageLost}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.order() >= 0 || s == StageLost
}

// IsTerminal reports whether s is won or lost.
func (s Stage) IsTerminal() bool {
	return s == StageWon || s == StageLost
}

// order is the index in [lead, qualified, negotiation, closing, won].
// Lost sits outside the ordering and returns -1, as does any unknown stage.
func (s Stage) order() int {
	switch s {
	case StageLead:
		return 0
	case StageQualified:
		return 1
	case StageNegotiation:
		return 2
	case StageClosing:
		return 3
	case StageWon:
		return 4
	default:
		return -1
	}
}

// IsForwardMove reports whether moving from → to strictly advances the pipeline.
func IsForwardMove(from, to Stage) bool {
	f, t := from.order(), to.order()
	return f >= 0 && t > f
}

// BaseProbability is the stage's starting win probability in percent.
func (s Stage) BaseProbability() int {
	switch s {
	case StageLead:
		return 10
	case StageQualified:
		return 25
	case StageNegotiation:
		return 50
	case StageClosing:
		return 75
	case StageWon:
		return 100
	case StageLost:
		return 0
	default:
		return 0
	}
}

// ParseStage validates a raw stage string.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &ErrValidation{Field: "stage", Message: fmt.Sprintf("unknown stage '%s'", raw)}
	}
	return s, nil
}

// ============================================================
// Deal type
// ============================================================

// DealType classifies what the contractor sells on the lead.
type DealType string

const (
	DealTypeSupply      DealType = "supply"
	DealTypeApply       DealType = "apply"
	DealTypeSupplyApply DealType = "supply_apply"
)

// AllDealTypes lists every deal type.
var AllDealTypes = []DealType{DealTypeSupply, DealTypeApply, DealTypeSupplyApply}

// Valid reports whether d is a known deal type.
func (d DealType) Valid() bool {
	switch d {
	case DealTypeSupply, DealTypeApply, DealTypeSupplyApply:
		return true
	}
	return false
}

// ProbabilityMultiplier scales the stage+temperature probability.
func (d DealType) ProbabilityMultiplier() float64 {
	switch d {
	case DealTypeSupply:
		return 1.2
	case DealTypeSupplyApply:
		return 0.8
	case DealTypeApply:
		return 1.0
	default:
		return 1.0
	}
}

// ParseDealType validates a raw deal type string.
func ParseDealType(raw string) (DealType, error) {
	d := DealType(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", &ErrValidation{Field: "deal_type", Message: fmt.Sprintf("must be one of supply, apply, supply_apply (got '%s')", raw)}
	}
	return d, nil
}

// ============================================================
// Lead
// ============================================================

// Lead is a tracked sales opportunity.
type Lead struct {
	ID          string   `json:"id"`
	LeadNumber  string   `json:"lead_number"`
	ProjectName string   `json:"project_name"`
	DealType    DealType `json:"deal_type"`
	Source      string   `json:"source,omitempty"`

	Stage          Stage     `json:"stage"`
	SubStage       string    `json:"sub_stage,omitempty"`
	StageEnteredAt time.Time `json:"stage_entered_at"`

	Temperature       int               `json:"temperature"`
	TemperatureStatus TemperatureStatus `json:"temperature_status"`
	Probability       int               `json:"probability"`

	EstimatedValue decimal.Decimal  `json:"estimated_value"`
	QuotedValue    *decimal.Decimal `json:"quoted_value,omitempty"`
	FinalValue     *decimal.Decimal `json:"final_value,omitempty"`
	Currency       string           `json:"currency"`

	WonAt          *time.Time `json:"won_at,omitempty"`
	LostAt         *time.Time `json:"lost_at,omitempty"`
	LostReason     string     `json:"lost_reason,omitempty"`
	LostCompetitor string     `json:"lost_competitor,omitempty"`
	LostNotes      string     `json:"lost_notes,omitempty"`

	AssignedTo string `json:"assigned_to,omitempty"`
	CreatedBy  string `json:"created_by"`

	CustomerID         string `json:"customer_id,omitempty"`
	CanvassingReportID string `json:"canvassing_report_id,omitempty"`

	ContactName       string     `json:"contact_name,omitempty"`
	ContactPhone      string     `json:"contact_phone,omitempty"`
	Location          string     `json:"location,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`

	// Version is bumped by the store on every committed write.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the lead is still in a live stage.
func (l *Lead) IsActive() bool {
	return !l.Stage.IsTerminal()
}

// DaysInStage is the number of whole days since the lead entered its stage.
func (l *Lead) DaysInStage(now time.Time) int {
	if l.StageEnteredAt.IsZero() || now.Before(l.StageEnteredAt) {
		return 0
	}
	return int(now.Sub(l.StageEnteredAt).Hours() / 24)
}

// ApplyTemperatureImpact adds delta to the temperature (saturating) and
// re-derives the status band and probability.
func (l *Lead) ApplyTemperatureImpact(delta int) {
	l.SetTemperature(l.Temperature + ClampImpact(delta))
}

// SetTemperature clamps t into range, then re-derives band and probability.
func (l *Lead) SetTemperature(t int) {
	l.Temperature = ClampTemperature(t)
	l.TemperatureStatus = StatusForTemperature(l.Temperature)
	l.Probability = Probability(l.Stage, l.Temperature, l.DealType)
}

// EnterStage moves the lead to stage and restarts the stage clock.
func (l *Lead) EnterStage(stage Stage, subStage string, at time.Time) {
	l.Stage = stage
	l.SubStage = subStage
	l.StageEnteredAt = at
	l.Probability = Probability(l.Stage, l.Temperature, l.DealType)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (l *Lead) Clone() *Lead {
	c := *l
	c.QuotedValue = cloneDecimal(l.QuotedValue)
	c.FinalValue = cloneDecimal(l.FinalValue)
	c.WonAt = cloneTime(l.WonAt)
	c.LostAt = cloneTime(l.LostAt)
	c.ExpectedCloseDate = cloneTime(l.ExpectedCloseDate)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FormatLeadNumber renders L/{YY}/{MON}/{00001}.
func FormatLeadNumber(createdAt time.Time, seq int64) string {
	return fmt.Sprintf("L/%02d/%s/%05d", createdAt.Year()%100, strings.ToUpper(createdAt.Format("Jan")), seq)
}

// LeadView is a lead enriched with read-only projections.
type LeadView struct {
	Lead
	DaysInStage int       `json:"days_in_stage"`
	Customer    *Customer `json:"customer,omitempty"`
}

// ============================================================
// Requests
// ============================================================

// CreateLeadRequest is the payload to open a new lead.
type CreateLeadRequest struct {
	ProjectName        string          `json:"project_name"`
	DealType           DealType        `json:"deal_type"`
	Source             string          `json:"source,omitempty"`
	SubStage           string          `json:"sub_stage,omitempty"`
	EstimatedValue     decimal.Decimal `json:"estimated_value"`
	Currency           string          `json:"currency,omitempty"`
	AssignedTo         string          `json:"assigned_to,omitempty"`
	CustomerID         string          `json:"customer_id,omitempty"`
	CanvassingReportID string          `json:"canvassing_report_id,omitempty"`
	ContactName        string          `json:"contact_name,omitempty"`
	ContactPhone       string          `json:"contact_phone,omitempty"`
	Location           string          `json:"location,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	ExpectedCloseDate  *time.Time      `json:"expected_close_date,omitempty"`
}

// Validate checks required fields.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.ProjectName) == "" {
		return &ErrValidation{Field: "project_name", Message: "required"}
	}
	if !r.DealType.Valid() {
		return &ErrValidation{Field: "deal_type", Message: "must be one of supply, apply, supply_apply"}
	}
	if r.EstimatedValue.IsNegative() {
		return &ErrValidation{Field: "estimated_value", Message: "must not be negative"}
	}
	return nil
}

// UpdateLeadRequest carries a partial update; nil fields are left untouched.
// Stage, temperature and probability are not updatable here.
type UpdateLeadRequest struct {
	ProjectName        *string          `json:"project_name,omitempty"`
	DealType           *DealType        `json:"deal_type,omitempty"`
	Source             *string          `json:"source,omitempty"`
	SubStage           *string          `json:"sub_stage,omitempty"`
	EstimatedValue     *decimal.Decimal `json:"estimated_value,omitempty"`
	QuotedValue        *decimal.Decimal `json:"quoted_value,omitempty"`
	Currency           *string          `json:"currency,omitempty"`
	AssignedTo         *string          `json:"assigned_to,omitempty"`
	CustomerID         *string          `json:"customer_id,omitempty"`
	CanvassingReportID *string          `json:"canvassing_report_id,omitempty"`
	ContactName        *string          `json:"contact_name,omitempty"`
	ContactPhone       *string          `json:"contact_phone,omitempty"`
	Location           *string          `json:"location,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	ExpectedCloseDate  *time.Time       `json:"expected_close_date,omitempty"`
}

// Apply copies the set fields onto l. A deal type change re-derives probability.
func (r *UpdateLeadRequest) Apply(l *Lead) error {
	if r.ProjectName != nil {
		if strings.TrimSpace(*r.ProjectName) == "" {
			return &ErrValidation{Field: "project_name", Message: "must not be empty"}
		}
		l.ProjectName = *r.ProjectName
	}
	if r.DealType != nil {
		if !r.DealType.Valid() {
			return &ErrValidation{Field: "deal_type", Message: "must be one of supply, apply, supply_apply"}
		}
		l.DealType = *r.DealType
		l.Probability = Probability(l.Stage, l.Temperature, l.DealType)
	}
	if r.EstimatedValue != nil {
		if r.EstimatedValue.IsNegative() {
			return &ErrValidation{Field: "estimated_value", Message: "must not be negative"}
		}
		l.EstimatedValue = *r.EstimatedValue
	}
	if r.QuotedValue != nil {
		if r.QuotedValue.IsNegative() {
			return &ErrValidation{Field: "quoted_value", Message: "must not be negative"}
		}
		l.QuotedValue = cloneDecimal(r.QuotedValue)
	}
	setString(&l.Source, r.Source)
	setString(&l.SubStage, r.SubStage)
	setString(&l.Currency, r.Currency)
	setString(&l.AssignedTo, r.AssignedTo)
	setString(&l.CustomerID, r.CustomerID)
	setString(&l.CanvassingReportID, r.CanvassingReportID)
	setString(&l.ContactName, r.ContactName)
	setString(&l.ContactPhone, r.ContactPhone)
	setString(&l.Location, r.Location)
	setString(&l.Notes, r.Notes)
	if r.ExpectedCloseDate != nil {
		l.ExpectedCloseDate = cloneTime(r.ExpectedCloseDate)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// MoveStageRequest moves a live lead to another live stage.
type MoveStageRequest struct {
	Stage             Stage  `json:"stage"`
	SubStage          string `json:"sub_stage,omitempty"`
	TemperatureImpact int    `json:"temperature_impact,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// MarkWonRequest closes a lead as won.
type MarkWonRequest struct {
	FinalValue decimal.Decimal `json:"final_value"`
	Notes      string          `json:"notes,omitempty"`
}

// MarkLostRequest closes a lead as lost.
type MarkLostRequest struct {
	Reason     string `json:"reason"`
	Competitor string `json:"competitor,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// TemperatureUpdateRequest adjusts temperature either from the impact table
// (ActivityType) or by an explicit delta (Adjustment). Exactly one must be set.
type TemperatureUpdateRequest struct {
	ActivityType ActivityType `json:"activity_type,omitempty"`
	Adjustment   *int         `json:"adjustment,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Validate enforces the one-of rule.
func (r *TemperatureUpdateRequest) Validate() error {
	switch {
	case r.ActivityType != "" && r.Adjustment != nil:
		return &ErrValidation{Field: "adjustment", Message: "set either activity_type or adjustment, not both"}
	case r.ActivityType == "" && r.Adjustment == nil:
		return &ErrValidation{Field: "adjustment", Message: "activity_type or adjustment is required"}
	case r.ActivityType != "" && !r.ActivityType.Valid():
		return &ErrValidation{Field: "activity_type", Message: fmt.Sprintf("unknown activity type '%s'", r.ActivityType)}
	}
	return nil
}

// ============================================================
// Filtering
// ============================================================

// LeadFilter narrows ListLeads and GetStats. Zero values match everything.
type LeadFilter struct {
	Stage      Stage             `json:"stage,omitempty"`
	DealType   DealType          `json:"deal_type,omitempty"`
	Status     TemperatureStatus `json:"status,omitempty"`
	AssignedTo string            `json:"assigned_to,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	Source     string            `json:"source,omitempty"`
	Query      string            `json:"q,omitempty"`
	ActiveOnly bool              `json:"active_only,omitempty"`
}

// Matches reports whether l passes every set criterion.
// Query is a case-insensitive substring match on project name, lead number and contact name.
func (f LeadFilter) Matches(l *Lead) bool {
	if f.Stage != "" && l.Stage != f.Stage {
		return false
	}
	if f.DealType != "" && l.DealType != f.DealType {
		return false
	}
	if f.Status != "" && l.TemperatureStatus != f.Status {
		return false
	}
	if f.AssignedTo != "" && l.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CustomerID != "" && l.CustomerID != f.CustomerID {
		return false
	}
	if f.Source != "" && !strings.EqualFold(l.Source, f.Source) {
		return false
	}
	if f.ActiveOnly && !l.IsActive() {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(l.ProjectName), q) &&
			!strings.Contains(strings.ToLower(l.LeadNumber), q) &&
			!strings.Contains(strings.ToLower(l.ContactName), q) {
			return false
		}
	}
	return true
}
