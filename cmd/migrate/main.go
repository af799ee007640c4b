package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/bootstrap"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|reset|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	proc := bootstrap.Start("migrate")
	ctx := proc.Logger.WithFields(context.Background(), logger.Fields{
		"env": proc.Config.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := run(ctx, proc, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", opts.cmd, err)
		proc.Close()
		os.Exit(1)
	}
	proc.Close()
}

func run(ctx context.Context, proc *bootstrap.Process, opts options) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		count, err := migrate.ValidateDir(opts.dir)
		if err != nil {
			return err
		}
		fmt.Printf("validated %d portable migrations\n", count)
		return nil
	}

	runner, err := openRunner(ctx, proc, opts.dir)
	if err != nil {
		return err
	}
	proc.Logger.Info(ctx, "migrate ready")

	var results []migrate.Applied
	switch opts.cmd {
	case "up":
		results, err = runner.Up(ctx)
	case "down":
		results, err = runner.Down(ctx)
	case "reset":
		results, err = runner.Reset(ctx)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version")
		}
		results, err = runner.MigrateTo(ctx, opts.version)
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(states)
		return nil
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	for _, res := range results {
		fmt.Printf("%-4s %d %s (%s)\n", res.Direction, res.Version, res.Path, res.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d migrations\n", opts.cmd, len(results))
	return nil
}

// openRunner connects without the dev auto-migration hook. The default
// directory is compiled in; any other -dir is read from disk.
func openRunner(ctx context.Context, proc *bootstrap.Process, dir string) (*migrate.Runner, error) {
	client, err := db.New(ctx, proc.Config.DB, proc.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	proc.DeferCloser("database", client)

	sqlDB, err := client.SQL()
	if err != nil {
		return nil, err
	}
	var source fs.FS
	if dir != migrate.DefaultDir {
		source = os.DirFS(dir)
	}
	return migrate.NewRunner(sqlDB, client.Driver(), source)
}

func printStatus(states []migrate.State) {
	for _, st := range states {
		applied := "pending"
		if st.Applied {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%d  %-25s  %s\n", st.Version, applied, st.Path)
	}
}
