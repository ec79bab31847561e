// Package migrate applies the goose migrations that create the document
// table, either from disk or from the copy compiled into the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/locallink/locallink-backend/pkg/config"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

const embeddedDir = "migrations"

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

var (
	errNoDB      = errors.New("db is required")
	errNoDir     = errors.New("migrations dir is required")
	errNoVersion = errors.New("target version is required")
)

// commands accepted by Run; anything else goes through To or is rejected.
var commands = map[string]bool{"up": true, "down": true, "redo": true, "reset": true, "status": true}

// Source locates a migrations directory. A nil FS means the local disk.
type Source struct {
	FS  fs.FS
	Dir string
}

// Disk reads migrations from dir on the local filesystem.
func Disk(dir string) Source { return Source{Dir: dir} }

// Embedded reads the migrations compiled into the binary.
func Embedded() Source { return Source{FS: embedded, Dir: embeddedDir} }

func (s Source) String() string {
	if s.FS != nil {
		return "embedded:" + s.Dir
	}
	return s.Dir
}

// Dialect maps a configured DB driver to the goose dialect name.
func Dialect(driver string) string {
	if driver == config.DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Run executes a goose command (up, down, redo, reset, status).
func Run(ctx context.Context, db *sql.DB, dialect string, src Source, command string) error {
	if !commands[command] {
		return fmt.Errorf("unsupported migrate command %q", command)
	}
	return withGoose(db, dialect, src, func() error {
		// status output goes to stdout
		if err := goose.RunContext(ctx, command, db, src.Dir); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// To moves the schema up or down until version (YYYYMMDDHHMMSS) is the
// newest applied migration.
func To(ctx context.Context, db *sql.DB, dialect string, src Source, version string) error {
	if version == "" {
		return errNoVersion
	}
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}

	return withGoose(db, dialect, src, func() error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read db version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, db, src.Dir, target)
		case current > target:
			err = goose.DownToContext(ctx, db, src.Dir, target)
		}
		if err != nil {
			return fmt.Errorf("goose %d -> %d: %w", current, target, err)
		}
		return nil
	})
}

func withGoose(db *sql.DB, dialect string, src Source, fn func() error) error {
	if db == nil {
		return errNoDB
	}
	if src.Dir == "" {
		return errNoDir
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(src.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}
