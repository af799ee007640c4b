package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written and validated on disk.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DialectFor maps a pkg/db driver name to the goose dialect.
func DialectFor(driver string) goose.Dialect {
	if driver == "sqlite" {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

// Applied is one migration executed by the runner.
type Applied struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
}

// State is the applied state of one migration.
type State struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Runner applies the ledger schema migrations to one database.
type Runner struct {
	provider *goose.Provider
}

// NewRunner builds a runner for the given pkg/db driver. A nil fsys uses the
// embedded migrations.
func NewRunner(db *sql.DB, driver string, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Embedded()
	}
	provider, err := goose.NewProvider(DialectFor(driver), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return applied(results), fmt.Errorf("goose up: %w", err)
	}
	return applied(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) ([]Applied, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return applied([]*goose.MigrationResult{result}), nil
}

// Reset rolls back every applied migration.
func (r *Runner) Reset(ctx context.Context) ([]Applied, error) {
	results, err := r.provider.DownTo(ctx, 0)
	if err != nil {
		return applied(results), fmt.Errorf("goose reset: %w", err)
	}
	return applied(results), nil
}

// Status reports every known migration in version order.
func (r *Runner) Status(ctx context.Context) ([]State, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]State, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, State{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// MigrateTo moves the schema up or down to targetVersion (YYYYMMDDHHMMSS).
func (r *Runner) MigrateTo(ctx context.Context, targetVersion string) ([]Applied, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	if err != nil {
		return applied(results), fmt.Errorf("migrate to %d: %w", target, err)
	}
	return applied(results), nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}
