package postgres

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boddenberg/coatings-pipeline-go/internal/infra/storetest"
	"github.com/boddenberg/coatings-pipeline-go/internal/port"
)

// Runs against a real database only when PIPELINE_TEST_DATABASE_URL is set.
func TestStore_LeadStoreSuite(t *testing.T) {
	dsn := os.Getenv("PIPELINE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PIPELINE_TEST_DATABASE_URL not set")
	}

	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	storetest.Run(t, func(t *testing.T) port.LeadStore {
		require.NoError(t, s.db.Exec("TRUNCATE lead_activities, leads, customers").Error)
		require.NoError(t, s.db.Exec("UPDATE lead_sequences SET value = 0 WHERE id = 1").Error)
		return s
	})
}
