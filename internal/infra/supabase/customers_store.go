package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Customer store (implements port.CustomerStore)
// ============================================================

// GetCustomers resolves ids with a single id=in.(...) query.
func (c *Client) GetCustomers(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCustomers")
	defer span.End()
	span.SetAttributes(attribute.Int("customers.requested", len(ids)))

	out := make(map[string]*domain.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}
	path := fmt.Sprintf("customers?id=in.(%s)", strings.Join(quoted, ","))

	err := c.guard.Do(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return nil
		}
		var rows []domain.Customer
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode customers: %w", err)
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/customers", err)
	}
	return out, nil
}

// SaveCustomer upserts by primary key.
func (c *Client) SaveCustomer(ctx context.Context, cust *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveCustomer")
	defer span.End()

	err := c.guard.Do(ctx, func() error {
		_, err := c.doPost(ctx, "customers", cust, "resolution=merge-duplicates,return=minimal")
		return err
	})
	return wrapErr("supabase/customers", err)
}
