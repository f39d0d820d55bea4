package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/schema"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the embedded set (create defaults to "+migrate.DefaultDir+")")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create/validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exit(fmt.Sprintf("failed to create migration: %v", err))
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		migrations, err := migrate.Source(*dir)
		if err != nil {
			exit(fmt.Sprintf("open migrations: %v", err))
		}
		if err := migrate.ValidateFS(migrations); err != nil {
			exit(fmt.Sprintf("migration validation failed: %v", err))
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if dbClient.Dialect() == config.DriverSQLite {
		if *cmd != "up" {
			exit("sqlite databases only support -cmd=up")
		}
		requireResource(ctx, logg, "sqlite schema", schema.ApplySQLite(dbClient.DB()))
		logg.Info(ctx, "sqlite schema applied")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	migrations, err := migrate.Source(*dir)
	requireResource(ctx, logg, "migrations", err)
	runner, err := migrate.NewRunner(sqlDB, migrations)
	requireResource(ctx, logg, "migration runner", err)

	switch *cmd {
	case "up":
		var applied int
		applied, err = runner.Up(ctx)
		ctx = logg.WithField(ctx, "applied", applied)
	case "down":
		err = runner.Down(ctx)
	case "status":
		var pending []int64
		pending, err = runner.Pending(ctx)
		ctx = logg.WithField(ctx, "pending", pending)
	case "version":
		if *version == "" {
			exit("missing -version for version command")
		}
		err = runner.To(ctx, *version)
	default:
		exit(fmt.Sprintf("unknown -cmd value: %s", *cmd))
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
