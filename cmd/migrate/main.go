package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/db"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up | down | redo | reset | status   goose command against the database
  to <YYYYMMDDHHMMSS>                 move the schema to exactly that version
  create <name>                       write a new timestamped SQL migration
  validate                            check migration names and annotations

flags:
`

func main() {
	dir := pflag.StringP("dir", "d", migrate.DefaultDir, "migrations directory on disk")
	useEmbedded := pflag.Bool("embedded", false, "use the migrations compiled into the binary instead of --dir")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	command, rest := args[0], args[1:]

	src := migrate.Disk(*dir)
	if *useEmbedded {
		src = migrate.Embedded()
	}

	switch command {
	case "create":
		if *useEmbedded {
			fail("create writes to --dir; drop --embedded")
		}
		path, err := migrate.CreateSQLMigration(*dir, argOrFail(rest, "create needs a migration name"))
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		var err error
		if *useEmbedded {
			err = migrate.ValidateEmbedded()
		} else {
			err = migrate.ValidateDir(*dir)
		}
		if err != nil {
			fail("validation failed:\n%v", err)
		}
		fmt.Println("migrations ok:", src)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		DebugSample: cfg.App.LogDebugSample,
	})

	dialect := migrate.Dialect(cfg.DB.Driver)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"command": command,
		"source":  src.String(),
		"dialect": dialect,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer client.Close()
	sqlDB, err := client.SQL()
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}

	if command == "to" {
		err = migrate.To(ctx, sqlDB, dialect, src, argOrFail(rest, "to needs a version"))
	} else {
		err = migrate.Run(ctx, sqlDB, dialect, src, command)
	}
	if err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate done")
}

func argOrFail(args []string, msg string) string {
	if len(args) != 1 || args[0] == "" {
		fail("%s", msg)
	}
	return args[0]
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
