package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// identifier splits an optionally schema-qualified name and quotes it
func identifier(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("identifier is required")
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// ColumnSource reads blob paths from one column of a file-bearing table, such
// as portfolio images or certificate scans stored outside the attachment table.
type ColumnSource struct {
	db    DBTX
	name  string
	query string
}

// NewColumnSource returns a path source over table.column. Null and empty
// values are ignored.
func NewColumnSource(db DBTX, name, table, column string) (*ColumnSource, error) {
	t, err := identifier(table)
	if err != nil {
		return nil, fmt.Errorf("path source %s: %w", name, err)
	}
	c, err := identifier(column)
	if err != nil {
		return nil, fmt.Errorf("path source %s: %w", name, err)
	}
	if name == "" {
		name = table + "." + column
	}
	return &ColumnSource{
		db:    db,
		name:  name,
		query: fmt.Sprintf(`SELECT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL AND %[2]s <> ''`, t, c),
	}, nil
}

func (s *ColumnSource) Name() string {
	return s.name
}

func (s *ColumnSource) StoredPaths(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, "list "+s.name+" paths", s.query)
}

// NewTableOwnerLookup checks owner existence by id in the given table. The id
// column is compared as text so integer and uuid keys both work.
func NewTableOwnerLookup(db DBTX, table, idColumn string) (simpleattachment.OwnerLookup, error) {
	t, err := identifier(table)
	if err != nil {
		return nil, err
	}
	c, err := identifier(idColumn)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s::text = $1)`, t, c)

	return func(ctx context.Context, ownerID string) (bool, error) {
		var exists bool
		if err := db.QueryRow(ctx, query, ownerID).Scan(&exists); err != nil {
			return false, handlePostgresError("lookup owner in "+table, err)
		}
		return exists, nil
	}, nil
}

var _ simpleattachment.PathSource = (*ColumnSource)(nil)
