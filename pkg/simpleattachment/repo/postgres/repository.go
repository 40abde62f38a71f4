package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// CreateTableSQL is the DDL the repository expects. Owner columns are both
// null or both set.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS attachment (
	id UUID PRIMARY KEY,
	attachment_type VARCHAR(100) NOT NULL DEFAULT '',
	stored_path VARCHAR(1024) NOT NULL,
	original_name VARCHAR(1024) NOT NULL DEFAULT '',
	display_name VARCHAR(1024) NOT NULL DEFAULT '',
	extension VARCHAR(32) NOT NULL DEFAULT '',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	owner_type VARCHAR(50),
	owner_id VARCHAR(255),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT attachment_stored_path_key UNIQUE (stored_path),
	CONSTRAINT attachment_owner_pair CHECK ((owner_type IS NULL) = (owner_id IS NULL))
);
CREATE INDEX IF NOT EXISTS attachment_owner_idx ON attachment (owner_type, owner_id, created_at, id);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleattachment.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simpleattachment.ErrAttachmentNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", simpleattachment.ErrDuplicateKey, pgErr.ConstraintName)
		case "23514": // check_violation
			return simpleattachment.ErrInvalidOwnerRef
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const selectColumns = `
	id, attachment_type, stored_path, original_name, display_name,
	extension, size_bytes, owner_type, owner_id, created_at, updated_at`

func ownerColumns(owner *simpleattachment.OwnerRef) (*string, *string) {
	if owner == nil {
		return nil, nil
	}
	t := string(owner.Type)
	id := owner.ID
	return &t, &id
}

func scanAttachment(row pgx.Row) (*simpleattachment.Attachment, error) {
	var a simpleattachment.Attachment
	var ownerType, ownerID *string
	err := row.Scan(
		&a.ID, &a.AttachmentType, &a.StoredPath, &a.OriginalName, &a.DisplayName,
		&a.Extension, &a.SizeBytes, &ownerType, &ownerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if ownerType != nil && ownerID != nil {
		a.Owner = &simpleattachment.OwnerRef{Type: simpleattachment.OwnerType(*ownerType), ID: *ownerID}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (r *Repository) CreateAttachment(ctx context.Context, a *simpleattachment.Attachment) error {
	query := `
		INSERT INTO attachment (
			id, attachment_type, stored_path, original_name, display_name,
			extension, size_bytes, owner_type, owner_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ownerType, ownerID := ownerColumns(a.Owner)
	_, err := r.db.Exec(ctx, query,
		a.ID, a.AttachmentType, a.StoredPath, a.OriginalName, a.DisplayName,
		a.Extension, a.SizeBytes, ownerType, ownerID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return handlePostgresError("create attachment", err)
	}
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*simpleattachment.Attachment, error) {
	query := `SELECT` + selectColumns + ` FROM attachment WHERE id = $1`

	a, err := scanAttachment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get attachment", err)
	}
	return a, nil
}

func (r *Repository) UpdateAttachment(ctx context.Context, a *simpleattachment.Attachment) error {
	query := `
		UPDATE attachment SET
			attachment_type = $2, stored_path = $3, original_name = $4,
			display_name = $5, extension = $6, size_bytes = $7,
			owner_type = $8, owner_id = $9, updated_at = $10
		WHERE id = $1`

	ownerType, ownerID := ownerColumns(a.Owner)
	tag, err := r.db.Exec(ctx, query,
		a.ID, a.AttachmentType, a.StoredPath, a.OriginalName, a.DisplayName,
		a.Extension, a.SizeBytes, ownerType, ownerID, a.UpdatedAt)
	if err != nil {
		return handlePostgresError("update attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleattachment.ErrAttachmentNotFound
	}
	return nil
}

// DeleteAttachment hard-deletes the row. The blob is untouched.
func (r *Repository) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM attachment WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleattachment.ErrAttachmentNotFound
	}
	return nil
}

func (r *Repository) ListAttachmentsByOwner(ctx context.Context, ownerType simpleattachment.OwnerType, ownerID string) ([]*simpleattachment.Attachment, error) {
	query := `SELECT` + selectColumns + `
		FROM attachment
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY created_at, id`

	return r.queryAttachments(ctx, "list attachments by owner", query, string(ownerType), ownerID)
}

func (r *Repository) ListAttachments(ctx context.Context, params simpleattachment.ListAttachmentsParams) ([]*simpleattachment.Attachment, error) {
	query := `SELECT` + selectColumns + `
		FROM attachment
		ORDER BY created_at, id
		OFFSET $1`
	args := []interface{}{params.Offset}
	if params.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, params.Limit)
	}
	return r.queryAttachments(ctx, "list attachments", query, args...)
}

func (r *Repository) queryAttachments(ctx context.Context, operation, query string, args ...interface{}) ([]*simpleattachment.Attachment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*simpleattachment.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, handlePostgresError(operation, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(operation, err)
	}
	return result, nil
}

func (r *Repository) ListStoredPaths(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, "list stored paths", `SELECT stored_path FROM attachment ORDER BY stored_path`)
}

func queryStrings(ctx context.Context, db DBTX, operation, query string, args ...interface{}) ([]string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(operation, err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, handlePostgresError(operation, err)
	}
	return paths, nil
}

var _ simpleattachment.Repository = (*Repository)(nil)
