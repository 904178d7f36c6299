package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Execer is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Migrate runs embedded SQL migrations in order (001_..., 002_..., etc.) against the given
// destination. Placeholders {{schema}} and {{table}} are replaced with quoted identifiers.
func Migrate(ctx context.Context, db Execer, schema, table string) error {
	statements, err := Render(schema, table)
	if err != nil {
		return err
	}
	for _, m := range statements {
		if _, err := db.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("execute migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// Migration is one rendered migration file.
type Migration struct {
	Name string
	SQL  string
}

// Render returns the embedded migrations with identifiers substituted, sorted by file name.
func Render(schema, table string) ([]Migration, error) {
	if schema == "" || table == "" {
		return nil, fmt.Errorf("migrate: schema and table are required")
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	replacer := strings.NewReplacer(
		"{{schema}}", pgx.Identifier{schema}.Sanitize(),
		"{{table}}", pgx.Identifier{schema, table}.Sanitize(),
	)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, SQL: replacer.Replace(string(raw))})
	}
	return out, nil
}
