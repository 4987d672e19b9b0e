// Package teststore opens migrated stores for tests.
package teststore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/vectorwave/internal/profile"
	"github.com/hrygo/vectorwave/store"
	"github.com/hrygo/vectorwave/store/db"
)

// NewTestingStore returns a migrated store for the driver named by
// VECTORWAVE_TEST_DRIVER (default sqlite). Postgres also needs
// VECTORWAVE_TEST_DSN and skips the test when it is missing.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	prof := &profile.Profile{Mode: "dev", Driver: os.Getenv("VECTORWAVE_TEST_DRIVER")}
	switch prof.Driver {
	case "", "sqlite":
		prof.Driver = "sqlite"
		prof.DSN = filepath.Join(t.TempDir(), "vectorwave_test.db")
	case "postgres":
		prof.DSN = os.Getenv("VECTORWAVE_TEST_DSN")
		if prof.DSN == "" {
			t.Skip("VECTORWAVE_TEST_DSN not set")
		}
	}

	driver, err := db.NewDBDriver(prof)
	require.NoError(t, err)
	s := store.New(driver, prof)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
