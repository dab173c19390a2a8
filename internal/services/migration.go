package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/devsys-hq/apiserver/types"
)

// migrationVersionLayout is the timestamp encoding of migration filename
// prefixes, e.g. 20240115093000_create_users.up.sql.
const migrationVersionLayout = "20060102150405"

// MigrationRunner lists and applies pending schema migrations.
type MigrationRunner interface {
	ListPending(ctx context.Context) ([]types.Migration, error)
	RunPending(ctx context.Context) ([]types.Migration, error)
}

// MigrationService drives golang-migrate against the configured database.
type MigrationService struct {
	databaseURL string
	sourceDir   string
}

func NewMigrationService(databaseURL, sourceDir string) *MigrationService {
	return &MigrationService{
		databaseURL: databaseURL,
		sourceDir:   sourceDir,
	}
}

// ListPending returns the migrations not yet applied, in version order.
func (s *MigrationService) ListPending(_ context.Context) ([]types.Migration, error) {
	current, err := s.currentVersion()
	if err != nil {
		return nil, err
	}
	return s.migrationsAfter(current)
}

// RunPending applies all pending migrations and returns the ones applied.
func (s *MigrationService) RunPending(ctx context.Context) ([]types.Migration, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []types.Migration{}, nil
	}

	migrator, err := migrate.New("file://"+s.sourceDir, s.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate up failed: %w", err)
	}
	return pending, nil
}

func (s *MigrationService) currentVersion() (uint64, error) {
	migrator, err := migrate.New("file://"+s.sourceDir, s.databaseURL)
	if err != nil {
		return 0, fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	version, _, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(version), nil
}

// migrationsAfter reads the source directory and describes every up
// migration with a version greater than current, preserving version order.
func (s *MigrationService) migrationsAfter(current uint64) ([]types.Migration, error) {
	entries, err := os.ReadDir(s.sourceDir)
	if err != nil {
		return nil, err
	}

	migrations := []types.Migration{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		prefix, rest, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil || version <= current {
			continue
		}

		timestamp, err := time.Parse(migrationVersionLayout, prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s has a malformed version: %w", name, err)
		}

		migrations = append(migrations, types.Migration{
			Path:      filepath.Join(s.sourceDir, name),
			Name:      strings.TrimSuffix(rest, ".up.sql"),
			Timestamp: timestamp,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Timestamp.Before(migrations[j].Timestamp)
	})
	return migrations, nil
}
