package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertSubmission inserts or replaces the row for (FormID, UserEmail).
// Every field is last-write-wins except company_logo_url, which is only
// overwritten when the incoming submission carries a new logo.
func (s *PostgresStore) UpsertSubmission(ctx context.Context, sub Submission) error {
	payload, err := json.Marshal(sub.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form_submissions (
			form_id, user_email, form_title, first_name, last_name,
			company_name, entry_created_at, entry_updated_at, payload,
			company_logo_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (form_id, user_email) DO UPDATE SET
			form_title = EXCLUDED.form_title,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			company_name = EXCLUDED.company_name,
			entry_created_at = EXCLUDED.entry_created_at,
			entry_updated_at = EXCLUDED.entry_updated_at,
			payload = EXCLUDED.payload,
			company_logo_url = COALESCE(EXCLUDED.company_logo_url, form_submissions.company_logo_url),
			updated_at = NOW()
	`, sub.FormID, sub.UserEmail, sub.FormTitle, sub.FirstName, sub.LastName,
		sub.CompanyName, sub.EntryCreatedAt, sub.EntryUpdatedAt, payload,
		sub.CompanyLogoURL)
	if err != nil {
		return fmt.Errorf("upsert submission %s/%s: %w", sub.FormID, sub.UserEmail, err)
	}
	return nil
}

const submissionColumns = `
	form_id, user_email, form_title, first_name, last_name, company_name,
	entry_created_at, entry_updated_at, payload, company_logo_url,
	created_at, updated_at
`

// ListSubmissions returns the submissions for email restricted to
// formIDs. A nil or empty formIDs returns every submission.
func (s *PostgresStore) ListSubmissions(ctx context.Context, email string, formIDs []string) ([]Submission, error) {
	if len(formIDs) == 0 {
		return s.ListAllSubmissions(ctx, email)
	}

	placeholders := make([]string, len(formIDs))
	args := make([]any, 0, len(formIDs)+1)
	args = append(args, email)
	for i, id := range formIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM form_submissions
		WHERE user_email = $1 AND form_id IN (%s)
		ORDER BY form_id ASC
	`, submissionColumns, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// ListAllSubmissions returns every submission for email, ordered by form id.
func (s *PostgresStore) ListAllSubmissions(ctx context.Context, email string) ([]Submission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM form_submissions
		WHERE user_email = $1
		ORDER BY form_id ASC
	`, submissionColumns)

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("list all submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	var subs []Submission
	for rows.Next() {
		var sub Submission
		var payload []byte
		if err := rows.Scan(
			&sub.FormID, &sub.UserEmail, &sub.FormTitle, &sub.FirstName,
			&sub.LastName, &sub.CompanyName, &sub.EntryCreatedAt,
			&sub.EntryUpdatedAt, &payload, &sub.CompanyLogoURL,
			&sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &sub.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload %s/%s: %w", sub.FormID, sub.UserEmail, err)
			}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

// IsAllowedAdmin reports whether email is on the admin allowlist.
func (s *PostgresStore) IsAllowedAdmin(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM allowed_admin_emails WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check admin allowlist: %w", err)
	}
	return exists, nil
}

// SearchClients is the database fallback for the admin client search:
// case-insensitive substring match over identity, names and company.
func (s *PostgresStore) SearchClients(ctx context.Context, q string, limit int) ([]ClientHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_email,
			MAX(COALESCE(first_name, '')),
			MAX(COALESCE(last_name, '')),
			MAX(COALESCE(company_name, '')),
			COUNT(*)
		FROM form_submissions
		WHERE user_email ILIKE '%' || $1 || '%'
			OR COALESCE(company_name, '') ILIKE '%' || $1 || '%'
			OR COALESCE(first_name, '') ILIKE '%' || $1 || '%'
			OR COALESCE(last_name, '') ILIKE '%' || $1 || '%'
		GROUP BY user_email
		ORDER BY user_email ASC
		LIMIT $2
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	var hits []ClientHit
	for rows.Next() {
		var hit ClientHit
		if err := rows.Scan(&hit.UserEmail, &hit.FirstName, &hit.LastName, &hit.CompanyName, &hit.Forms); err != nil {
			return nil, fmt.Errorf("scan client hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client hits: %w", err)
	}
	return hits, nil
}
