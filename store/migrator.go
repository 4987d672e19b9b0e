package store

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/internal/version"
)

// Migration is a versioned batch of schema statements.
type Migration struct {
	Version    string
	Statements []string
}

// Migrate applies every driver migration newer than the latest applied one,
// in semantic version order.
func (s *Store) Migrate(ctx context.Context) error {
	applied, err := s.driver.ListAppliedMigrations(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list applied migrations")
	}
	current := ""
	if len(applied) > 0 {
		sort.Sort(version.SortVersion(applied))
		current = applied[len(applied)-1]
	}

	migrations := s.driver.Migrations()
	sort.Slice(migrations, func(i, j int) bool {
		return version.IsVersionGreaterThan(migrations[j].Version, migrations[i].Version)
	})

	for _, m := range migrations {
		if current != "" && !version.IsVersionGreaterThan(m.Version, current) {
			continue
		}
		if err := s.driver.ApplyMigration(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s", m.Version)
		}
		slog.Info("Applied schema migration", "version", m.Version)
	}
	return nil
}
