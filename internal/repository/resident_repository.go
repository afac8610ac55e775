package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/soto-labs/registro-api/internal/models"
	appErrors "github.com/soto-labs/registro-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// ResidentRepository manages persistence for permanent resident records.
type ResidentRepository struct {
	db *sqlx.DB
}

// NewResidentRepository constructs a ResidentRepository.
func NewResidentRepository(db *sqlx.DB) *ResidentRepository {
	return &ResidentRepository{db: db}
}

// Insert creates a resident row and assigns the generated id. A duplicate
// national id fails with DUPLICATE_IDENTITY and leaves the table untouched.
func (r *ResidentRepository) Insert(ctx context.Context, resident *models.Resident) error {
	if resident.RegisteredAt.IsZero() {
		resident.RegisteredAt = time.Now().UTC()
	}
	const query = `INSERT INTO residents (name, national_id, primary_photo_path, folder_path, registered_at)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		resident.Name, resident.NationalID, resident.PrimaryPhotoPath, resident.FolderPath, resident.RegisteredAt,
	).Scan(&resident.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrDuplicateIdentity.Code, appErrors.ErrDuplicateIdentity.Status, appErrors.ErrDuplicateIdentity.Message)
		}
		return fmt.Errorf("insert resident: %w", err)
	}
	return nil
}

// UpdatePrimaryPhoto points the row at a new primary photo and reports
// whether a row was affected. Existence checks are the caller's job.
func (r *ResidentRepository) UpdatePrimaryPhoto(ctx context.Context, id int64, photoPath string) (bool, error) {
	const query = `UPDATE residents SET primary_photo_path = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, photoPath)
	if err != nil {
		return false, fmt.Errorf("update resident photo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update resident photo: %w", err)
	}
	return affected > 0, nil
}

// FolderPath returns the record's folder path. sql.ErrNoRows propagates
// when the id is unknown.
func (r *ResidentRepository) FolderPath(ctx context.Context, id int64) (string, error) {
	const query = `SELECT folder_path FROM residents WHERE id = $1`
	var folder string
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		return "", err
	}
	return folder, nil
}

// Get fetches one resident by id.
func (r *ResidentRepository) Get(ctx context.Context, id int64) (*models.Resident, error) {
	const query = `SELECT id, name, national_id, primary_photo_path, folder_path, registered_at
        FROM residents WHERE id = $1`
	var resident models.Resident
	if err := r.db.GetContext(ctx, &resident, query, id); err != nil {
		return nil, err
	}
	return &resident, nil
}

// List returns every resident, newest registration first.
func (r *ResidentRepository) List(ctx context.Context) ([]models.Resident, error) {
	const query = `SELECT id, name, national_id, primary_photo_path, folder_path, registered_at
        FROM residents ORDER BY registered_at DESC`
	residents := make([]models.Resident, 0)
	if err := r.db.SelectContext(ctx, &residents, query); err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	return residents, nil
}

// Delete removes the row and reports whether it existed.
func (r *ResidentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM residents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete resident: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete resident: %w", err)
	}
	return affected > 0, nil
}
