// Package postgres is a LeadStore and CustomerStore on PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
)

var tracer = otel.Tracer("postgres")

// Store wraps a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn, migrates the schema and seeds the sequence row.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and runs migrations.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&leadRow{}, &activityRow{}, &sequenceRow{}, &customerRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sequenceRow{ID: 1, Value: 0}).Error; err != nil {
		return nil, fmt.Errorf("seed lead sequence: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	var row leadRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListLeads")
	defer span.End()

	q := s.db.WithContext(ctx).Model(&leadRow{})
	if filter.Stage != "" {
		q = q.Where("stage = ?", string(filter.Stage))
	}
	if filter.DealType != "" {
		q = q.Where("deal_type = ?", string(filter.DealType))
	}
	if filter.Status != "" {
		q = q.Where("temperature_status = ?", string(filter.Status))
	}
	if filter.AssignedTo != "" {
		q = q.Where("assigned_to = ?", filter.AssignedTo)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Source != "" {
		q = q.Where("lower(source) = lower(?)", filter.Source)
	}
	if filter.ActiveOnly {
		q = q.Where("stage NOT IN ?", []string{string(domain.StageWon), string(domain.StageLost)})
	}
	if text := strings.TrimSpace(filter.Query); text != "" {
		like := "%" + text + "%"
		q = q.Where("project_name ILIKE ? OR lead_number ILIKE ? OR contact_name ILIKE ?", like, like, like)
	}

	var rows []leadRow
	if err := q.Order("created_at DESC, lead_number DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	leads := make([]*domain.Lead, 0, len(rows))
	for i := range rows {
		leads = append(leads, rows[i].toDomain())
	}
	return leads, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead, created *domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	row := toLeadRow(lead)
	row.Version = 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &domain.ErrConflict{Message: "lead already exists: " + lead.LeadNumber}
			}
			return fmt.Errorf("insert lead: %w", err)
		}
		if created != nil {
			if err := tx.Create(toActivityRow(created)).Error; err != nil {
				return fmt.Errorf("insert activity: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	lead.Version = 1
	return nil
}

// SaveLead is a compare-and-swap on version inside one transaction.
func (s *Store) SaveLead(ctx context.Context, lead *domain.Lead, expectedVersion int, activities ...*domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Postgres.SaveLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID), attribute.Int("lead.version", expectedVersion))

	cols := toLeadRow(lead).updateColumns()
	cols["version"] = gorm.Expr("version + 1")

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&leadRow{}).
			Where("id = ? AND version = ?", lead.ID, expectedVersion).
			Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("update lead: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&leadRow{}).Where("id = ?", lead.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return &domain.ErrNotFound{Resource: "lead", ID: lead.ID}
			}
			return domain.NewVersionConflict(lead.ID, expectedVersion)
		}
		for _, a := range activities {
			if err := tx.Create(toActivityRow(a)).Error; err != nil {
				return fmt.Errorf("insert activity: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	lead.Version = expectedVersion + 1
	return nil
}

func (s *Store) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&leadRow{}).Where("id = ?", leadID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}

	var rows []activityRow
	if err := db.Where("lead_id = ?", leadID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out := make([]domain.Activity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// NextLeadSequence increments the counter row; the row lock serializes concurrent callers.
func (s *Store) NextLeadSequence(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Raw("UPDATE lead_sequences SET value = value + 1 WHERE id = 1 RETURNING value").
		Scan(&n).Error
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
	var rows []customerRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get customers: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = &domain.Customer{
			ID:          r.ID,
			Name:        r.Name,
			CompanyName: r.CompanyName,
			Phone:       r.Phone,
			Email:       r.Email,
			Address:     r.Address,
			City:        r.City,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		return &domain.ErrValidation{Field: "id", Message: "required"}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	row := customerRow{
		ID:          c.ID,
		Name:        c.Name,
		CompanyName: c.CompanyName,
		Phone:       c.Phone,
		Email:       c.Email,
		Address:     c.Address,
		City:        c.City,
		CreatedAt:   c.CreatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "company_name", "phone", "email", "address", "city"}),
	}).Create(&row).Error
}
