package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

const serviceName = "wdir-migrate"

const usage = `usage: migrate [flags] <command>

commands:
  up                 apply all pending migrations
  down               roll back the latest migration
  status             print applied and pending migrations
  version <version>  migrate up or down to YYYYMMDDHHMMSS
  create <name>      write an empty migration into -dir
  validate           check filenames and goose markers in -dir

flags:
`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", migrate.DefaultDir, "migrations directory; empty uses the embedded set")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dir, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir, command string, args []string) error {
	// create and validate only touch the filesystem.
	switch command {
	case "create":
		if len(args) == 0 {
			return errors.New("missing migration name")
		}
		path, err := migrate.CreateSQLMigration(dir, args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "command": command, "dir": dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	logg.Info(ctx, "migrate.start")
	if command == "version" {
		if len(args) == 0 {
			return errors.New("missing target version")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, dir, args[0])
	} else {
		err = migrate.Run(ctx, sqlDB, dir, command)
	}
	if err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.complete")
	return nil
}
