package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const templateColumns = `id, name, category, goal, tone, language, status, is_system, personas, max_words,
	forbidden_claims, notes, version, usage_count, subjects, blocks, cta, created_at, updated_at, deleted_at`

// PostgresRepository stores templates in email_templates. Subjects, blocks
// and the CTA live inline as JSONB documents that carry explicit sort_order
// fields, so they cascade with the row.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool or connection.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("templates: pgx db required")
	}
	return &PostgresRepository{db: db}
}

type documentColumns struct {
	subjects []byte
	blocks   []byte
	cta      []byte
}

func encodeDocuments(t *Template) (documentColumns, error) {
	var cols documentColumns
	var err error
	if cols.subjects, err = json.Marshal(t.Subjects); err != nil {
		return cols, fmt.Errorf("templates: marshal subjects: %w", err)
	}
	if cols.blocks, err = json.Marshal(t.Blocks); err != nil {
		return cols, fmt.Errorf("templates: marshal blocks: %w", err)
	}
	if t.CTA != nil {
		if cols.cta, err = json.Marshal(t.CTA); err != nil {
			return cols, fmt.Errorf("templates: marshal cta: %w", err)
		}
	}
	return cols, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t *Template) error {
	docs, err := encodeDocuments(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO email_templates (id, name, category, goal, tone, language, status, is_system, personas,
			max_words, forbidden_claims, notes, version, usage_count, subjects, blocks, cta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	if _, err := r.db.Exec(ctx, query,
		t.ID, t.Name, string(t.Category), string(t.Goal), t.Tone, t.Language, string(t.Status), t.IsSystem,
		t.Personas.Sorted(), t.MaxWords, t.ForbiddenClaims.Sorted(), t.Notes, t.Version, t.UsageCount,
		docs.subjects, docs.blocks, docs.cta, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return fmt.Errorf("templates: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Template, error) {
	row := r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("templates: select failed: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(string(filter.Category)))
	}
	if filter.Goal != "" {
		where = append(where, "goal = "+arg(string(filter.Goal)))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Language != "" {
		where = append(where, "lower(language) = lower("+arg(filter.Language)+")")
	}
	if filter.Persona != "" {
		where = append(where, "EXISTS (SELECT 1 FROM unnest(personas) p WHERE lower(p) = lower("+arg(filter.Persona)+"))")
	}
	if filter.IsSystem != nil {
		where = append(where, "is_system = "+arg(*filter.IsSystem))
	}

	query := `SELECT ` + templateColumns + ` FROM email_templates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY lower(name), id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("templates: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("templates: scan failed: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, t *Template, expectedVersion int) error {
	docs, err := encodeDocuments(t)
	if err != nil {
		return err
	}
	query := `
		UPDATE email_templates
		SET name = $3, category = $4, goal = $5, tone = $6, language = $7, status = $8, personas = $9,
			max_words = $10, forbidden_claims = $11, notes = $12, version = $13, subjects = $14, blocks = $15,
			cta = $16, updated_at = $17, deleted_at = $18
		WHERE id = $1 AND version = $2
	`
	tag, err := r.db.Exec(ctx, query,
		t.ID, expectedVersion, t.Name, string(t.Category), string(t.Goal), t.Tone, t.Language, string(t.Status),
		t.Personas.Sorted(), t.MaxWords, t.ForbiddenClaims.Sorted(), t.Notes, t.Version,
		docs.subjects, docs.blocks, docs.cta, t.UpdatedAt, t.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("templates: update failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainMiss(ctx, "templates: update", t.ID, expectedVersion)
}

func (r *PostgresRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		UPDATE email_templates SET usage_count = usage_count + 1
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING usage_count`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTemplateNotFound
		}
		return 0, fmt.Errorf("templates: increment usage: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_templates WHERE id = $1 AND version = $2 AND is_system = false`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("templates: delete failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainMiss(ctx, "templates: delete", id, expectedVersion)
}

// explainMiss turns a zero-row write into NotFound or Conflict.
func (r *PostgresRepository) explainMiss(ctx context.Context, op, id string, expectedVersion int) error {
	var current int
	var isSystem bool
	err := r.db.QueryRow(ctx, `SELECT version, is_system FROM email_templates WHERE id = $1`, id).Scan(&current, &isSystem)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTemplateNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: lookup version: %w", op, err)
	}
	if current != expectedVersion {
		return apperr.Conflict(op, id, expectedVersion, current)
	}
	if isSystem {
		return apperr.Forbidden(op, "system templates cannot be deleted")
	}
	return fmt.Errorf("%s: no rows affected for %s", op, id)
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var (
		t                        Template
		category, goal, status   string
		personas, forbidden      []string
		subjects, blocks, ctaDoc []byte
		deletedAt                *time.Time
	)
	if err := row.Scan(
		&t.ID, &t.Name, &category, &goal, &t.Tone, &t.Language, &status, &t.IsSystem, &personas, &t.MaxWords,
		&forbidden, &t.Notes, &t.Version, &t.UsageCount, &subjects, &blocks, &ctaDoc, &t.CreatedAt, &t.UpdatedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	t.Category = Category(category)
	t.Goal = Goal(goal)
	t.Status = Status(status)
	t.Personas = stringset.New(personas...)
	t.ForbiddenClaims = stringset.New(forbidden...)
	t.DeletedAt = deletedAt
	if len(subjects) > 0 {
		if err := json.Unmarshal(subjects, &t.Subjects); err != nil {
			return nil, fmt.Errorf("decode subjects: %w", err)
		}
	}
	if len(blocks) > 0 {
		if err := json.Unmarshal(blocks, &t.Blocks); err != nil {
			return nil, fmt.Errorf("decode blocks: %w", err)
		}
	}
	if len(ctaDoc) > 0 && string(ctaDoc) != "null" {
		var c CTA
		if err := json.Unmarshal(ctaDoc, &c); err != nil {
			return nil, fmt.Errorf("decode cta: %w", err)
		}
		t.CTA = &c
	}
	t.Subjects = densifySubjects(t.Subjects)
	t.Blocks = densifyBlocks(t.Blocks)
	return &t, nil
}
