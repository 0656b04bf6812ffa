package postgres

import (
	"context"
	"database/sql"

	"simodapi/internal/model"
	"simodapi/internal/repository"
)

// DiscoveryPostgres is a PostgreSQL implementation of repository.DiscoveryRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DiscoveryPostgres struct {
	db *sql.DB
}

// NewDiscoveryPostgres creates a new DiscoveryPostgres repository.
func NewDiscoveryPostgres(db *sql.DB) *DiscoveryPostgres {
	return &DiscoveryPostgres{db: db}
}

var _ repository.DiscoveryRepository = (*DiscoveryPostgres)(nil)

const discoveryColumns = `id, status, event_log_path, configuration_path, callback_url, archive_path, error_message, created_at, updated_at`

func scanDiscovery(row interface{ Scan(...any) error }) (*model.Discovery, error) {
	var d model.Discovery
	if err := row.Scan(
		&d.ID,
		&d.Status,
		&d.EventLogPath,
		&d.ConfigurationPath,
		&d.CallbackURL,
		&d.ArchivePath,
		&d.ErrorMessage,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new discovery row and returns the stored record.
func (r *DiscoveryPostgres) Create(ctx context.Context, d *model.Discovery) (*model.Discovery, error) {
	const q = `
		INSERT INTO discoveries (id, status, event_log_path, configuration_path, callback_url, archive_path, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + discoveryColumns
	row := r.db.QueryRowContext(ctx, q,
		d.ID,
		d.Status,
		d.EventLogPath,
		d.ConfigurationPath,
		d.CallbackURL,
		d.ArchivePath,
		d.ErrorMessage,
		d.CreatedAt,
		d.UpdatedAt,
	)
	return scanDiscovery(row)
}

// FindByID fetches a single discovery by its ID.
func (r *DiscoveryPostgres) FindByID(ctx context.Context, id string) (*model.Discovery, error) {
	const q = `
		SELECT ` + discoveryColumns + `
		FROM discoveries
		WHERE id = $1
	`
	return scanDiscovery(r.db.QueryRowContext(ctx, q, id))
}

// List returns discoveries using LIMIT/OFFSET pagination and a total count.
func (r *DiscoveryPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Discovery], error) {
	// Count total rows
	const qCount = `SELECT COUNT(*) FROM discoveries`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	// Fetch page
	const qList = `
		SELECT ` + discoveryColumns + `
		FROM discoveries
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Discovery, 0)
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Discovery]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateStatus persists a lifecycle transition. Returns sql.ErrNoRows if the row is gone.
func (r *DiscoveryPostgres) UpdateStatus(ctx context.Context, d *model.Discovery) error {
	const q = `
		UPDATE discoveries
		SET status = $2, archive_path = $3, error_message = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, d.ID, d.Status, d.ArchivePath, d.ErrorMessage, d.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a discovery by ID. It does not return an error if the row does not exist.
func (r *DiscoveryPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM discoveries WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}
