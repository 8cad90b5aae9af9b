// Package sqlite is a LeadStore and CustomerStore on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

var tracer = otel.Tracer("sqlite")

const leadColumns = `id, lead_number, project_name, deal_type, source, stage, sub_stage, stage_entered_at,
	temperature, temperature_status, probability, estimated_value, quoted_value, final_value, currency,
	won_at, lost_at, lost_reason, lost_competitor, lost_notes, assigned_to, created_by,
	customer_id, canvassing_report_id, contact_name, contact_phone, location, notes, expected_close_date,
	version, created_at, updated_at`

const activityColumns = `id, lead_id, type, title, description, outcome, next_action, next_action_date,
	temperature_impact, created_by, created_at`

// Store wraps a single-connection *sql.DB in WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory, opens path in WAL mode and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// One writer avoids "database is locked" and keeps :memory: on a single connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ListLeads pushes every filter down into the WHERE clause. Newest first.
func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListLeads")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(clause string, vals ...any) {
		where = append(where, clause)
		args = append(args, vals...)
	}
	if filter.Stage != "" {
		add("stage = ?", string(filter.Stage))
	}
	if filter.DealType != "" {
		add("deal_type = ?", string(filter.DealType))
	}
	if filter.Status != "" {
		add("temperature_status = ?", string(filter.Status))
	}
	if filter.AssignedTo != "" {
		add("assigned_to = ?", filter.AssignedTo)
	}
	if filter.CustomerID != "" {
		add("customer_id = ?", filter.CustomerID)
	}
	if filter.Source != "" {
		add("lower(source) = lower(?)", filter.Source)
	}
	if filter.ActiveOnly {
		add("stage NOT IN ('won', 'lost')")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		add("(lower(project_name) LIKE ? OR lower(lead_number) LIKE ? OR lower(contact_name) LIKE ?)", like, like, like)
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, lead_number DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []*domain.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead, created *domain.Activity) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	vals := leadValues(lead, 1)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
	if _, err := tx.ExecContext(ctx, `INSERT INTO leads (`+leadColumns+`) VALUES (`+placeholders+`)`, vals...); err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "lead already exists: " + lead.LeadNumber}
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	if created != nil {
		if err := insertActivity(ctx, tx, created); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	lead.Version = 1
	return nil
}

// SaveLead updates the row only if its version still equals expectedVersion,
// then appends activities in the same transaction.
func (s *Store) SaveLead(ctx context.Context, lead *domain.Lead, expectedVersion int, activities ...*domain.Activity) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID), attribute.Int("lead.version", expectedVersion))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE leads SET
			lead_number = ?, project_name = ?, deal_type = ?, source = ?, stage = ?, sub_stage = ?,
			stage_entered_at = ?, temperature = ?, temperature_status = ?, probability = ?,
			estimated_value = ?, quoted_value = ?, final_value = ?, currency = ?,
			won_at = ?, lost_at = ?, lost_reason = ?, lost_competitor = ?, lost_notes = ?,
			assigned_to = ?, customer_id = ?, canvassing_report_id = ?, contact_name = ?,
			contact_phone = ?, location = ?, notes = ?, expected_close_date = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		lead.LeadNumber, lead.ProjectName, string(lead.DealType), lead.Source, string(lead.Stage), lead.SubStage,
		formatTime(lead.StageEnteredAt), lead.Temperature, string(lead.TemperatureStatus), lead.Probability,
		lead.EstimatedValue.String(), nullDecimal(lead.QuotedValue), nullDecimal(lead.FinalValue), lead.Currency,
		nullTime(lead.WonAt), nullTime(lead.LostAt), lead.LostReason, lead.LostCompetitor, lead.LostNotes,
		lead.AssignedTo, lead.CustomerID, lead.CanvassingReportID, lead.ContactName,
		lead.ContactPhone, lead.Location, lead.Notes, nullTime(lead.ExpectedCloseDate),
		formatTime(lead.UpdatedAt),
		lead.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ?`, lead.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "lead", ID: lead.ID}
		}
		if err != nil {
			return err
		}
		return domain.NewVersionConflict(lead.ID, expectedVersion)
	}

	for _, a := range activities {
		if err := insertActivity(ctx, tx, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	lead.Version = expectedVersion + 1
	return nil
}

func (s *Store) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ?`, leadID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM lead_activities WHERE lead_id = ? ORDER BY created_at DESC, id DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a              domain.Activity
			typ, createdAt string
			nextActionDate sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.LeadID, &typ, &a.Title, &a.Description, &a.Outcome, &a.NextAction,
			&nextActionDate, &a.TemperatureImpact, &a.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = domain.ActivityType(typ)
		a.CreatedAt = parseTime(createdAt)
		a.NextActionDate = parseNullTime(nextActionDate)
		out = append(out, a)
	}
	return out, rows.Err()
}

// NextLeadSequence bumps the single counter row.
func (s *Store) NextLeadSequence(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `UPDATE lead_sequence SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next lead sequence: %w", err)
	}
	return n, nil
}

func (s *Store) GetCustomers(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	out := make(map[string]*domain.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, company_name, phone, email, address, city, created_at FROM customers WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c         domain.Customer
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.CompanyName, &c.Phone, &c.Email, &c.Address, &c.City, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		out[c.ID] = &c
	}
	return out, rows.Err()
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		return &domain.ErrValidation{Field: "id", Message: "required"}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, company_name, phone, email, address, city, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, company_name = excluded.company_name, phone = excluded.phone,
			email = excluded.email, address = excluded.address, city = excluded.city`,
		c.ID, c.Name, c.CompanyName, c.Phone, c.Email, c.Address, c.City, formatTime(c.CreatedAt))
	return err
}

// ============================================================
// Row mapping
// ============================================================

func leadValues(l *domain.Lead, version int) []any {
	return []any{
		l.ID, l.LeadNumber, l.ProjectName, string(l.DealType), l.Source, string(l.Stage), l.SubStage,
		formatTime(l.StageEnteredAt), l.Temperature, string(l.TemperatureStatus), l.Probability,
		l.EstimatedValue.String(), nullDecimal(l.QuotedValue), nullDecimal(l.FinalValue), l.Currency,
		nullTime(l.WonAt), nullTime(l.LostAt), l.LostReason, l.LostCompetitor, l.LostNotes,
		l.AssignedTo, l.CreatedBy, l.CustomerID, l.CanvassingReportID, l.ContactName, l.ContactPhone,
		l.Location, l.Notes, nullTime(l.ExpectedCloseDate),
		version, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	}
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var (
		l                                    domain.Lead
		dealType, stage, status              string
		stageEnteredAt, createdAt, updatedAt string
		estimated                            string
		quoted, final                        sql.NullString
		wonAt, lostAt, expectedClose         sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.LeadNumber, &l.ProjectName, &dealType, &l.Source, &stage, &l.SubStage, &stageEnteredAt,
		&l.Temperature, &status, &l.Probability, &estimated, &quoted, &final, &l.Currency,
		&wonAt, &lostAt, &l.LostReason, &l.LostCompetitor, &l.LostNotes, &l.AssignedTo, &l.CreatedBy,
		&l.CustomerID, &l.CanvassingReportID, &l.ContactName, &l.ContactPhone, &l.Location, &l.Notes, &expectedClose,
		&l.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.DealType = domain.DealType(dealType)
	l.Stage = domain.Stage(stage)
	l.TemperatureStatus = domain.TemperatureStatus(status)
	l.StageEnteredAt = parseTime(stageEnteredAt)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	l.EstimatedValue, err = decimal.NewFromString(estimated)
	if err != nil {
		return nil, fmt.Errorf("estimated_value: %w", err)
	}
	if l.QuotedValue, err = parseNullDecimal(quoted); err != nil {
		return nil, fmt.Errorf("quoted_value: %w", err)
	}
	if l.FinalValue, err = parseNullDecimal(final); err != nil {
		return nil, fmt.Errorf("final_value: %w", err)
	}
	l.WonAt = parseNullTime(wonAt)
	l.LostAt = parseNullTime(lostAt)
	l.ExpectedCloseDate = parseNullTime(expectedClose)
	return &l, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, a *domain.Activity) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO lead_activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LeadID, string(a.Type), a.Title, a.Description, a.Outcome, a.NextAction,
		nullTime(a.NextActionDate), a.TemperatureImpact, a.CreatedBy, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Times are stored as fixed-width UTC text so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
