package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/soto-labs/registro-api/internal/models"
)

// VisitRepository manages persistence for time-limited visit records.
// Unlike residents, visits carry no uniqueness constraint on the national
// id: the same person may visit any number of times.
type VisitRepository struct {
	db *sqlx.DB
}

// NewVisitRepository constructs a VisitRepository.
func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Insert creates a visit row and assigns the generated id.
func (r *VisitRepository) Insert(ctx context.Context, visit *models.Visit) error {
	if visit.RegisteredAt.IsZero() {
		visit.RegisteredAt = time.Now().UTC()
	}
	const query = `INSERT INTO visits (name, national_id, primary_photo_path, folder_path, registered_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		visit.Name, visit.NationalID, visit.PrimaryPhotoPath, visit.FolderPath, visit.RegisteredAt, visit.ExpiresAt,
	).Scan(&visit.ID)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// UpdateRetake refreshes the primary photo and the expiry in one statement,
// the combined update the retake-visit path needs.
func (r *VisitRepository) UpdateRetake(ctx context.Context, id int64, photoPath string, expiresAt time.Time) (bool, error) {
	const query = `UPDATE visits SET primary_photo_path = $2, expires_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, photoPath, expiresAt)
	if err != nil {
		return false, fmt.Errorf("update visit retake: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update visit retake: %w", err)
	}
	return affected > 0, nil
}

// FolderPath returns the record's folder path. sql.ErrNoRows propagates
// when the id is unknown.
func (r *VisitRepository) FolderPath(ctx context.Context, id int64) (string, error) {
	const query = `SELECT folder_path FROM visits WHERE id = $1`
	var folder string
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		return "", err
	}
	return folder, nil
}

// Get fetches one visit by id.
func (r *VisitRepository) Get(ctx context.Context, id int64) (*models.Visit, error) {
	const query = `SELECT id, name, national_id, primary_photo_path, folder_path, registered_at, expires_at
        FROM visits WHERE id = $1`
	var visit models.Visit
	if err := r.db.GetContext(ctx, &visit, query, id); err != nil {
		return nil, err
	}
	return &visit, nil
}

// ListActive returns visits whose expiry is strictly after now, newest
// registration first. A visit expiring exactly at now is already excluded,
// matching the sweep's strict less-than on the other side of the boundary.
func (r *VisitRepository) ListActive(ctx context.Context, now time.Time) ([]models.Visit, error) {
	const query = `SELECT id, name, national_id, primary_photo_path, folder_path, registered_at, expires_at
        FROM visits WHERE expires_at > $1 ORDER BY registered_at DESC`
	visits := make([]models.Visit, 0)
	if err := r.db.SelectContext(ctx, &visits, query, now); err != nil {
		return nil, fmt.Errorf("list active visits: %w", err)
	}
	return visits, nil
}

// ListExpired returns id and folder path for visits whose expiry is
// strictly before now.
func (r *VisitRepository) ListExpired(ctx context.Context, now time.Time) ([]models.ExpiredVisit, error) {
	const query = `SELECT id, folder_path FROM visits WHERE expires_at < $1`
	expired := make([]models.ExpiredVisit, 0)
	if err := r.db.SelectContext(ctx, &expired, query, now); err != nil {
		return nil, fmt.Errorf("list expired visits: %w", err)
	}
	return expired, nil
}

// DeleteExpired bulk-deletes every visit whose expiry is strictly before
// now and returns the number of rows removed.
func (r *VisitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM visits WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired visits: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired visits: %w", err)
	}
	return removed, nil
}

// Delete removes the row and reports whether it existed.
func (r *VisitRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM visits WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete visit: %w", err)
	}
	return affected > 0, nil
}
