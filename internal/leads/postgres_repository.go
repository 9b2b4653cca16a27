package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const leadColumns = `id, first_name, last_name, email, title, company, industry, company_size, persona, stage,
	language, event_name, event_date, event_location, topic, sender_name, sender_title, sender_company,
	sender_email, do_not_contact, tags, attributes, created_at, updated_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository initializes a repo backed by database/sql.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("leads: sql db required")
	}
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := req.toLead(uuid.New().String(), r.now())

	attrs, err := marshalAttributes(lead.Attributes)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $23)
	`
	if _, err := r.db.ExecContext(ctx, query,
		lead.ID, lead.FirstName, lead.LastName, lead.Email, lead.Title, lead.Company, lead.Industry,
		lead.CompanySize, lead.Persona, string(lead.Stage), lead.Language, lead.EventName, lead.EventDate,
		lead.EventLocation, lead.Topic, lead.SenderName, lead.SenderTitle, lead.SenderCompany, lead.SenderEmail,
		lead.DoNotContact, pq.Array(lead.Tags), attrs, lead.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("leads: get", id)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	var where []string
	var args []any
	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		where = append(where, fmt.Sprintf("stage = $%d", len(args)))
	}
	if filter.Persona != "" {
		args = append(args, filter.Persona)
		where = append(where, fmt.Sprintf("lower(persona) = lower($%d)", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// UpdateStage moves a lead to stage.
func (r *PostgresRepository) UpdateStage(ctx context.Context, id string, stage Stage) (*Lead, error) {
	if !stage.Valid() {
		return nil, invalidStage("leads: update stage", stage)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE leads SET stage = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+leadColumns, id, string(stage), r.now())
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("leads: update stage", id)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: update stage failed: %w", err)
	}
	return lead, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	var (
		l     Lead
		stage string
		attrs []byte
	)
	if err := row.Scan(
		&l.ID, &l.FirstName, &l.LastName, &l.Email, &l.Title, &l.Company, &l.Industry, &l.CompanySize,
		&l.Persona, &stage, &l.Language, &l.EventName, &l.EventDate, &l.EventLocation, &l.Topic,
		&l.SenderName, &l.SenderTitle, &l.SenderCompany, &l.SenderEmail, &l.DoNotContact,
		pq.Array(&l.Tags), &attrs, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Stage = Stage(stage)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &l.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &l, nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if len(attrs) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("leads: marshal attributes: %w", err)
	}
	return data, nil
}
