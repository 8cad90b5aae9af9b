package postgres

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

type leadRow struct {
	ID                 string              `gorm:"primaryKey;type:uuid"`
	LeadNumber         string              `gorm:"uniqueIndex;not null"`
	ProjectName        string              `gorm:"not null"`
	DealType           string              `gorm:"not null"`
	Source             string              `gorm:"not null;default:''"`
	Stage              string              `gorm:"index;not null"`
	SubStage           string              `gorm:"not null;default:''"`
	StageEnteredAt     time.Time           `gorm:"not null"`
	Temperature        int                 `gorm:"not null;default:0"`
	TemperatureStatus  string              `gorm:"not null"`
	Probability        int                 `gorm:"not null;default:0"`
	EstimatedValue     decimal.Decimal     `gorm:"type:numeric(14,2);not null;default:0"`
	QuotedValue        decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	FinalValue         decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	Currency           string              `gorm:"size:3;not null;default:'USD'"`
	WonAt              sql.NullTime
	LostAt             sql.NullTime
	LostReason         string `gorm:"not null;default:''"`
	LostCompetitor     string `gorm:"not null;default:''"`
	LostNotes          string `gorm:"not null;default:''"`
	AssignedTo         string `gorm:"index;not null;default:''"`
	CreatedBy          string `gorm:"not null;default:''"`
	CustomerID         string `gorm:"index;not null;default:''"`
	CanvassingReportID string `gorm:"not null;default:''"`
	ContactName        string `gorm:"not null;default:''"`
	ContactPhone       string `gorm:"not null;default:''"`
	Location           string `gorm:"not null;default:''"`
	Notes              string `gorm:"not null;default:''"`
	ExpectedCloseDate  sql.NullTime
	Version            int       `gorm:"not null;default:1"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (leadRow) TableName() string { return "leads" }

type activityRow struct {
	ID                string `gorm:"primaryKey"`
	LeadID            string `gorm:"type:uuid;index:idx_lead_activities_lead,priority:1;not null"`
	Type              string `gorm:"not null"`
	Title             string `gorm:"not null"`
	Description       string `gorm:"not null;default:''"`
	Outcome           string `gorm:"not null;default:''"`
	NextAction        string `gorm:"not null;default:''"`
	NextActionDate    sql.NullTime
	TemperatureImpact int       `gorm:"not null;default:0"`
	CreatedBy         string    `gorm:"not null;default:''"`
	CreatedAt         time.Time `gorm:"index:idx_lead_activities_lead,priority:2;not null"`
}

func (activityRow) TableName() string { return "lead_activities" }

type sequenceRow struct {
	ID    int   `gorm:"primaryKey;autoIncrement:false"`
	Value int64 `gorm:"not null"`
}

func (sequenceRow) TableName() string { return "lead_sequences" }

type customerRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	CompanyName string `gorm:"not null;default:''"`
	Phone       string `gorm:"not null;default:''"`
	Email       string `gorm:"not null;default:''"`
	Address     string `gorm:"not null;default:''"`
	City        string `gorm:"not null;default:''"`
	CreatedAt   time.Time
}

func (customerRow) TableName() string { return "customers" }

// ============================================================
// Mapping
// ============================================================

func toLeadRow(l *domain.Lead) *leadRow {
	return &leadRow{
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
		QuotedValue:        nullDecimal(l.QuotedValue),
		FinalValue:         nullDecimal(l.FinalValue),
		Currency:           l.Currency,
		WonAt:              nullTime(l.WonAt),
		LostAt:             nullTime(l.LostAt),
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
		ExpectedCloseDate:  nullTime(l.ExpectedCloseDate),
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func (r *leadRow) toDomain() *domain.Lead {
	return &domain.Lead{
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
		QuotedValue:        fromNullDecimal(r.QuotedValue),
		FinalValue:         fromNullDecimal(r.FinalValue),
		Currency:           r.Currency,
		WonAt:              fromNullTime(r.WonAt),
		LostAt:             fromNullTime(r.LostAt),
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
		ExpectedCloseDate:  fromNullTime(r.ExpectedCloseDate),
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// updateColumns lists every mutable column. A map keeps zero values in the UPDATE.
func (r *leadRow) updateColumns() map[string]any {
	return map[string]any{
		"lead_number":          r.LeadNumber,
		"project_name":         r.ProjectName,
		"deal_type":            r.DealType,
		"source":               r.Source,
		"stage":                r.Stage,
		"sub_stage":            r.SubStage,
		"stage_entered_at":     r.StageEnteredAt,
		"temperature":          r.Temperature,
		"temperature_status":   r.TemperatureStatus,
		"probability":          r.Probability,
		"estimated_value":      r.EstimatedValue,
		"quoted_value":         r.QuotedValue,
		"final_value":          r.FinalValue,
		"currency":             r.Currency,
		"won_at":               r.WonAt,
		"lost_at":              r.LostAt,
		"lost_reason":          r.LostReason,
		"lost_competitor":      r.LostCompetitor,
		"lost_notes":           r.LostNotes,
		"assigned_to":          r.AssignedTo,
		"customer_id":          r.CustomerID,
		"canvassing_report_id": r.CanvassingReportID,
		"contact_name":         r.ContactName,
		"contact_phone":        r.ContactPhone,
		"location":             r.Location,
		"notes":                r.Notes,
		"expected_close_date":  r.ExpectedCloseDate,
		"updated_at":           r.UpdatedAt,
	}
}

func toActivityRow(a *domain.Activity) *activityRow {
	return &activityRow{
		ID:                a.ID,
		LeadID:            a.LeadID,
		Type:              string(a.Type),
		Title:             a.Title,
		Description:       a.Description,
		Outcome:           a.Outcome,
		NextAction:        a.NextAction,
		NextActionDate:    nullTime(a.NextActionDate),
		TemperatureImpact: a.TemperatureImpact,
		CreatedBy:         a.CreatedBy,
		CreatedAt:         a.CreatedAt,
	}
}

func (r *activityRow) toDomain() domain.Activity {
	return domain.Activity{
		ID:                r.ID,
		LeadID:            r.LeadID,
		Type:              domain.ActivityType(r.Type),
		Title:             r.Title,
		Description:       r.Description,
		Outcome:           r.Outcome,
		NextAction:        r.NextAction,
		NextActionDate:    fromNullTime(r.NextActionDate),
		TemperatureImpact: r.TemperatureImpact,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
