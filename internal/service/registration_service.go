package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soto-labs/registro-api/internal/models"
	appErrors "github.com/soto-labs/registro-api/pkg/errors"
	"github.com/soto-labs/registro-api/pkg/storage"
)

// expiryLayouts accepts the datetime-local wire format first, then the
// stricter variants some clients send.
var expiryLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

const expiryDisplayLayout = "02/01/2006 15:04"

type residentStore interface {
	Insert(ctx context.Context, resident *models.Resident) error
	UpdatePrimaryPhoto(ctx context.Context, id int64, photoPath string) (bool, error)
	FolderPath(ctx context.Context, id int64) (string, error)
	Get(ctx context.Context, id int64) (*models.Resident, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type visitStore interface {
	Insert(ctx context.Context, visit *models.Visit) error
	UpdateRetake(ctx context.Context, id int64, photoPath string, expiresAt time.Time) (bool, error)
	FolderPath(ctx context.Context, id int64) (string, error)
	Get(ctx context.Context, id int64) (*models.Visit, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type recordFolderStore interface {
	RecordFolder(name, nationalID string) string
	EnsureFolder(folder string) error
	WritePhotos(folder string, photos [][]byte) ([]string, error)
	WriteMetadata(folder string, meta storage.SidecarMetadata) error
	RemovePhotos(folder string) error
	ReadPhoto(path string) ([]byte, error)
	Delete(folder string) error
}

// RegisterResidentRequest holds the payload for creating a resident or
// retaking its photos (RecordID present).
type RegisterResidentRequest struct {
	Name       string   `json:"name" validate:"required"`
	NationalID string   `json:"national_id" validate:"required"`
	Photos     []string `json:"photos"`
	RecordID   int64    `json:"record_id,omitempty"`
}

// RegisterVisitRequest adds the mandatory expiry to the resident payload.
type RegisterVisitRequest struct {
	Name       string   `json:"name" validate:"required"`
	NationalID string   `json:"national_id" validate:"required"`
	Photos     []string `json:"photos"`
	ExpiresAt  string   `json:"expires_at"`
	RecordID   int64    `json:"record_id,omitempty"`
}

// RegisterResult reports a completed registration or retake.
type RegisterResult struct {
	ID         int64             `json:"id"`
	Kind       models.RecordKind `json:"kind"`
	FolderPath string            `json:"folder_path"`
	PhotoCount int               `json:"photo_count"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	Message    string            `json:"-"`
}

// PhotoContent bundles a stored photo's bytes with its detected mime type.
type PhotoContent struct {
	Data     []byte
	MimeType string
}

// RegistrationService orchestrates the sanitizer, folder store and
// repositories for the register/retake/delete/photo workflows.
type RegistrationService struct {
	residents residentStore
	visits    visitStore
	folders   recordFolderStore
	cache     listingCache
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs the registration service. Cache and
// metrics may be nil.
func NewRegistrationService(residents residentStore, visits visitStore, folders recordFolderStore, cache listingCache, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		residents: residents,
		visits:    visits,
		folders:   folders,
		cache:     cache,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterResident creates a resident record or, when RecordID is set,
// replaces an existing record's photo batch.
func (s *RegistrationService) RegisterResident(ctx context.Context, req RegisterResidentRequest) (*RegisterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingFields.Code, appErrors.ErrMissingFields.Status, appErrors.ErrMissingFields.Message)
	}
	photos, err := decodePhotos(req.Photos)
	if err != nil {
		return nil, err
	}

	now := s.now()
	meta := storage.SidecarMetadata{
		Name:         req.Name,
		NationalID:   req.NationalID,
		Kind:         string(models.KindResident),
		RegisteredAt: now,
		PhotoCount:   len(photos),
		BatchID:      uuid.NewString(),
	}

	if req.RecordID > 0 {
		folder, err := s.residents.FolderPath(ctx, req.RecordID)
		if err != nil {
			return nil, notFoundOrInternal(err, "failed to load resident")
		}
		paths, err := s.retakePhotos(folder, photos, meta)
		if err != nil {
			return nil, err
		}
		affected, err := s.residents.UpdatePrimaryPhoto(ctx, req.RecordID, paths[0])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resident")
		}
		if !affected {
			return nil, appErrors.ErrNotFound
		}
		s.afterWrite(ctx, len(photos))
		return &RegisterResult{
			ID:         req.RecordID,
			Kind:       models.KindResident,
			FolderPath: folder,
			PhotoCount: len(photos),
			Message:    fmt.Sprintf("Photos updated successfully with %d photo(s)", len(photos)),
		}, nil
	}

	folder := s.folders.RecordFolder(req.Name, req.NationalID)
	paths, err := s.writeNewBatch(folder, photos, meta)
	if err != nil {
		return nil, err
	}

	resident := &models.Resident{
		Name:             req.Name,
		NationalID:       req.NationalID,
		PrimaryPhotoPath: paths[0],
		FolderPath:       folder,
		RegisteredAt:     now,
	}
	if err := s.residents.Insert(ctx, resident); err != nil {
		if appErrors.Is(err, appErrors.ErrDuplicateIdentity) {
			// The photos written above stay on disk: the insert is the
			// only step that rolls back. Known accepted inconsistency.
			s.logger.Warn("duplicate national id left orphaned folder",
				zap.String("national_id", req.NationalID),
				zap.String("folder", folder))
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resident")
	}

	s.afterWrite(ctx, len(photos))
	return &RegisterResult{
		ID:         resident.ID,
		Kind:       models.KindResident,
		FolderPath: folder,
		PhotoCount: len(photos),
		Message:    fmt.Sprintf("Resident registered successfully with %d photo(s)", len(photos)),
	}, nil
}

// RegisterVisit creates a visit record or, when RecordID is set, replaces
// an existing visit's photo batch and refreshes its expiry.
func (s *RegistrationService) RegisterVisit(ctx context.Context, req RegisterVisitRequest) (*RegisterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingFields.Code, appErrors.ErrMissingFields.Status, appErrors.ErrMissingFields.Message)
	}
	photos, err := decodePhotos(req.Photos)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	now := s.now()
	meta := storage.SidecarMetadata{
		Name:         req.Name,
		NationalID:   req.NationalID,
		Kind:         string(models.KindVisit),
		RegisteredAt: now,
		ExpiresAt:    &expiresAt,
		PhotoCount:   len(photos),
		BatchID:      uuid.NewString(),
	}
	confirmation := expiresAt.Format(expiryDisplayLayout)

	if req.RecordID > 0 {
		folder, err := s.visits.FolderPath(ctx, req.RecordID)
		if err != nil {
			return nil, notFoundOrInternal(err, "failed to load visit")
		}
		paths, err := s.retakePhotos(folder, photos, meta)
		if err != nil {
			return nil, err
		}
		affected, err := s.visits.UpdateRetake(ctx, req.RecordID, paths[0], expiresAt)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visit")
		}
		if !affected {
			return nil, appErrors.ErrNotFound
		}
		s.afterWrite(ctx, len(photos))
		return &RegisterResult{
			ID:         req.RecordID,
			Kind:       models.KindVisit,
			FolderPath: folder,
			PhotoCount: len(photos),
			ExpiresAt:  &expiresAt,
			Message:    fmt.Sprintf("Photos updated successfully with %d photo(s). Valid until %s", len(photos), confirmation),
		}, nil
	}

	folder := s.folders.RecordFolder(req.Name, req.NationalID)
	paths, err := s.writeNewBatch(folder, photos, meta)
	if err != nil {
		return nil, err
	}

	visit := &models.Visit{
		Name:             req.Name,
		NationalID:       req.NationalID,
		PrimaryPhotoPath: paths[0],
		FolderPath:       folder,
		RegisteredAt:     now,
		ExpiresAt:        expiresAt,
	}
	if err := s.visits.Insert(ctx, visit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create visit")
	}

	s.afterWrite(ctx, len(photos))
	return &RegisterResult{
		ID:         visit.ID,
		Kind:       models.KindVisit,
		FolderPath: folder,
		PhotoCount: len(photos),
		ExpiresAt:  &expiresAt,
		Message:    fmt.Sprintf("Visit registered successfully with %d photo(s). Valid until %s", len(photos), confirmation),
	}, nil
}

// Delete removes a record's folder (best effort) and its row. A missing
// id fails with NOT_FOUND before any filesystem mutation.
func (s *RegistrationService) Delete(ctx context.Context, kind models.RecordKind, id int64) error {
	var (
		folder string
		err    error
	)
	switch kind {
	case models.KindResident:
		folder, err = s.residents.FolderPath(ctx, id)
	case models.KindVisit:
		folder, err = s.visits.FolderPath(ctx, id)
	default:
		return appErrors.ErrInvalidKind
	}
	if err != nil {
		return notFoundOrInternal(err, "failed to load record")
	}

	if err := s.folders.Delete(folder); err != nil {
		// Row deletion proceeds regardless: the database is ground truth.
		s.logger.Warn("failed to delete record folder",
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
			zap.String("folder", folder),
			zap.Error(err))
	}

	var existed bool
	switch kind {
	case models.KindResident:
		existed, err = s.residents.Delete(ctx, id)
	case models.KindVisit:
		existed, err = s.visits.Delete(ctx, id)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}
	if !existed {
		return appErrors.ErrNotFound
	}

	s.invalidateListing(ctx)
	return nil
}

// PrimaryPhoto fetches the record's designated photo as bytes plus mime
// type. A missing row or file is NOT_FOUND.
func (s *RegistrationService) PrimaryPhoto(ctx context.Context, kind models.RecordKind, id int64) (*PhotoContent, error) {
	var photoPath string
	switch kind {
	case models.KindResident:
		resident, err := s.residents.Get(ctx, id)
		if err != nil {
			return nil, notFoundOrInternal(err, "failed to load resident")
		}
		photoPath = resident.PrimaryPhotoPath
	case models.KindVisit:
		visit, err := s.visits.Get(ctx, id)
		if err != nil {
			return nil, notFoundOrInternal(err, "failed to load visit")
		}
		photoPath = visit.PrimaryPhotoPath
	default:
		return nil, appErrors.ErrInvalidKind
	}

	data, err := s.folders.ReadPhoto(photoPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "photo file not found")
		}
		return nil, err
	}

	mimeType := http.DetectContentType(data)
	if mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return &PhotoContent{Data: data, MimeType: mimeType}, nil
}

// writeNewBatch creates the folder and writes photos plus sidecar for a
// brand-new record.
func (s *RegistrationService) writeNewBatch(folder string, photos [][]byte, meta storage.SidecarMetadata) ([]string, error) {
	if err := s.folders.EnsureFolder(folder); err != nil {
		return nil, err
	}
	paths, err := s.folders.WritePhotos(folder, photos)
	if err != nil {
		return nil, err
	}
	if err := s.folders.WriteMetadata(folder, meta); err != nil {
		return nil, err
	}
	return paths, nil
}

// retakePhotos clears the previous numbered batch and writes the new one
// into the record's existing folder. The folder path never changes.
func (s *RegistrationService) retakePhotos(folder string, photos [][]byte, meta storage.SidecarMetadata) ([]string, error) {
	if err := s.folders.RemovePhotos(folder); err != nil {
		return nil, err
	}
	paths, err := s.folders.WritePhotos(folder, photos)
	if err != nil {
		return nil, err
	}
	if err := s.folders.WriteMetadata(folder, meta); err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *RegistrationService) afterWrite(ctx context.Context, photoCount int) {
	if s.metrics != nil {
		s.metrics.AddPhotosWritten(photoCount)
	}
	s.invalidateListing(ctx)
}

func (s *RegistrationService) invalidateListing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, listingCacheKey); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.Error(err))
	}
}

// decodePhotos turns base64 payloads, optionally carrying a data-URI
// prefix, into raw bytes. An empty list is NO_PHOTOS.
func decodePhotos(encoded []string) ([][]byte, error) {
	if len(encoded) == 0 {
		return nil, appErrors.ErrNoPhotos
	}
	photos := make([][]byte, 0, len(encoded))
	for i, payload := range encoded {
		if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
			payload = payload[idx+1:]
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidPhoto.Code, appErrors.ErrInvalidPhoto.Status, fmt.Sprintf("photo %d could not be decoded", i+1))
		}
		photos = append(photos, raw)
	}
	return photos, nil
}

// parseExpiry reads the visit expiry from its wire formats, interpreting
// wall-clock values in server local time.
func parseExpiry(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, appErrors.ErrMissingExpiry
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, appErrors.ErrInvalidExpiry
}

func notFoundOrInternal(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
