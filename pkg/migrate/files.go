package migrate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// versionLayout is the goose timestamp prefix every migration file carries.
const versionLayout = "20060102150405"

// Migrations run against both SQLite and Postgres, so the skeleton keeps to
// the shared subset and wraps each statement for goose.
const migrationSkeleton = `-- %s: keep to SQL both sqlite and postgres accept
-- +goose Up
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd
`

var errNoMigrations = errors.New("no migrations found")

// CreateSQLMigration writes an empty migration named after name into dir and
// returns its path. The version is the current UTC second, bumped past the
// newest existing file so migrations always apply in creation order.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, now time.Time) (string, error) {
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	files, err := scan(os.DirFS(dir), ".")
	if err != nil && !errors.Is(err, errNoMigrations) {
		return "", err
	}
	version := now
	if n := len(files); n > 0 {
		if latest := files[n-1].at; !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}

	target := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), slug))
	body := fmt.Sprintf(migrationSkeleton, slug)
	// O_EXCL so two concurrent creates never clobber each other.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	return target, nil
}

// slugify lowercases name and folds every run of other characters into a
// single underscore.
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// ValidateDir checks the migrations on disk under dir.
func ValidateDir(dir string) error {
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return ValidateFS(embedded, embeddedDir)
}

// ValidateFS reports every malformed migration under dir in one error:
// bad names, duplicate versions, missing Up or Down sections and unbalanced
// StatementBegin/StatementEnd blocks.
func ValidateFS(fsys fs.FS, dir string) error {
	files, err := scan(fsys, dir)
	if err != nil {
		return err
	}
	var problems error
	seen := make(map[int64]string, len(files))
	for _, f := range files {
		if prev, dup := seen[f.version]; dup {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %d: %s and %s", f.version, prev, f.name))
			continue
		}
		seen[f.version] = f.name

		data, err := fs.ReadFile(fsys, path.Join(dir, f.name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read %s: %w", f.name, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(f.name, data))
	}
	return problems
}

type migrationFile struct {
	name    string
	version int64
	at      time.Time
}

// scan lists the .sql files under dir sorted by version. A file that does
// not start with a goose timestamp is an error.
func scan(fsys fs.FS, dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var (
		files []migrationFile
		bad   error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		f, err := parseName(e.Name())
		if err != nil {
			bad = multierr.Append(bad, err)
			continue
		}
		files = append(files, f)
	}
	if bad != nil {
		return nil, bad
	}
	if len(files) == 0 {
		return nil, errNoMigrations
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func parseName(name string) (migrationFile, error) {
	stem := strings.TrimSuffix(name, ".sql")
	prefix, slug, ok := strings.Cut(stem, "_")
	if !ok || len(prefix) != len(versionLayout) || slug == "" || slugify(slug) != slug {
		return migrationFile{}, fmt.Errorf("invalid migration filename %q: want YYYYMMDDHHMMSS_snake_name.sql", name)
	}
	at, err := time.Parse(versionLayout, prefix)
	if err != nil {
		return migrationFile{}, fmt.Errorf("invalid migration filename %q: %w", name, err)
	}
	version, _ := strconv.ParseInt(prefix, 10, 64)
	return migrationFile{name: name, version: version, at: at}, nil
}

// checkAnnotations walks the goose markers in one file.
func checkAnnotations(name string, data []byte) error {
	var (
		section    string
		sections   = map[string]bool{}
		openedAt   int
		problems   error
		lineNumber int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lineNumber++
		marker, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "-- +goose ")
		if !ok {
			continue
		}
		switch strings.TrimSpace(marker) {
		case "Up", "Down":
			if openedAt > 0 {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: StatementBegin at line %d is never closed", name, openedAt, openedAt))
				openedAt = 0
			}
			section = strings.TrimSpace(marker)
			if sections[section] {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: repeated %s section", name, lineNumber, section))
			}
			sections[section] = true
		case "StatementBegin":
			if section == "" {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: StatementBegin before any Up or Down section", name, lineNumber))
			}
			if openedAt > 0 {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: nested StatementBegin", name, lineNumber))
			}
			openedAt = lineNumber
		case "StatementEnd":
			if openedAt == 0 {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: StatementEnd without StatementBegin", name, lineNumber))
			}
			openedAt = 0
		}
	}
	if err := sc.Err(); err != nil {
		return multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
	}
	if openedAt > 0 {
		problems = multierr.Append(problems, fmt.Errorf("%s:%d: StatementBegin is never closed", name, openedAt))
	}
	for _, want := range []string{"Up", "Down"} {
		if !sections[want] {
			problems = multierr.Append(problems, fmt.Errorf("%s: missing -- +goose %s", name, want))
		}
	}
	return problems
}
