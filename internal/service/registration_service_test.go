package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soto-labs/registro-api/internal/models"
	appErrors "github.com/soto-labs/registro-api/pkg/errors"
	"github.com/soto-labs/registro-api/pkg/storage"
)

type mockResidentStore struct {
	residents   map[int64]models.Resident
	nextID      int64
	insertErr   error
	lastUpdated struct {
		id   int64
		path string
	}
}

func (m *mockResidentStore) Insert(ctx context.Context, resident *models.Resident) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.residents == nil {
		m.residents = make(map[int64]models.Resident)
	}
	m.nextID++
	resident.ID = m.nextID
	m.residents[resident.ID] = *resident
	return nil
}

func (m *mockResidentStore) UpdatePrimaryPhoto(ctx context.Context, id int64, photoPath string) (bool, error) {
	m.lastUpdated.id = id
	m.lastUpdated.path = photoPath
	if r, ok := m.residents[id]; ok {
		r.PrimaryPhotoPath = photoPath
		m.residents[id] = r
		return true, nil
	}
	return false, nil
}

func (m *mockResidentStore) FolderPath(ctx context.Context, id int64) (string, error) {
	if r, ok := m.residents[id]; ok {
		return r.FolderPath, nil
	}
	return "", sql.ErrNoRows
}

func (m *mockResidentStore) Get(ctx context.Context, id int64) (*models.Resident, error) {
	if r, ok := m.residents[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockResidentStore) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.residents[id]; !ok {
		return false, nil
	}
	delete(m.residents, id)
	return true, nil
}

type mockVisitStore struct {
	visits map[int64]models.Visit
	nextID int64
}

func (m *mockVisitStore) Insert(ctx context.Context, visit *models.Visit) error {
	if m.visits == nil {
		m.visits = make(map[int64]models.Visit)
	}
	m.nextID++
	visit.ID = m.nextID
	m.visits[visit.ID] = *visit
	return nil
}

func (m *mockVisitStore) UpdateRetake(ctx context.Context, id int64, photoPath string, expiresAt time.Time) (bool, error) {
	v, ok := m.visits[id]
	if !ok {
		return false, nil
	}
	v.PrimaryPhotoPath = photoPath
	v.ExpiresAt = expiresAt
	m.visits[id] = v
	return true, nil
}

func (m *mockVisitStore) FolderPath(ctx context.Context, id int64) (string, error) {
	if v, ok := m.visits[id]; ok {
		return v.FolderPath, nil
	}
	return "", sql.ErrNoRows
}

func (m *mockVisitStore) Get(ctx context.Context, id int64) (*models.Visit, error) {
	if v, ok := m.visits[id]; ok {
		return &v, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVisitStore) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.visits[id]; !ok {
		return false, nil
	}
	delete(m.visits, id)
	return true, nil
}

type mockFolderStore struct {
	written   map[string][][]byte
	metadata  map[string]storage.SidecarMetadata
	removed   []string
	deleted   []string
	photos    map[string][]byte
	deleteErr error
}

func newMockFolderStore() *mockFolderStore {
	return &mockFolderStore{
		written:  make(map[string][][]byte),
		metadata: make(map[string]storage.SidecarMetadata),
		photos:   make(map[string][]byte),
	}
}

func (m *mockFolderStore) RecordFolder(name, nationalID string) string {
	return fmt.Sprintf("/fotos/%s_%s", storage.SanitizeFolderName(name), nationalID)
}

func (m *mockFolderStore) EnsureFolder(folder string) error { return nil }

func (m *mockFolderStore) WritePhotos(folder string, photos [][]byte) ([]string, error) {
	m.written[folder] = photos
	paths := make([]string, len(photos))
	for i := range photos {
		paths[i] = fmt.Sprintf("%s/photo_%02d.jpg", folder, i+1)
	}
	return paths, nil
}

func (m *mockFolderStore) WriteMetadata(folder string, meta storage.SidecarMetadata) error {
	m.metadata[folder] = meta
	return nil
}

func (m *mockFolderStore) RemovePhotos(folder string) error {
	m.removed = append(m.removed, folder)
	return nil
}

func (m *mockFolderStore) ReadPhoto(path string) ([]byte, error) {
	if data, ok := m.photos[path]; ok {
		return data, nil
	}
	return nil, appErrors.Wrap(fmt.Errorf("open %s: %w", path, errors.New("file does not exist")), appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "read photo")
}

func (m *mockFolderStore) Delete(folder string) error {
	m.deleted = append(m.deleted, folder)
	return m.deleteErr
}

type mockListingCache struct {
	deleted []string
}

func (m *mockListingCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockListingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (m *mockListingCache) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func encodePhotos(n int) []string {
	encoded := make([]string, n)
	for i := range encoded {
		encoded[i] = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("jpeg-bytes-%d", i)))
	}
	return encoded
}

func newRegistrationService(residents *mockResidentStore, visits *mockVisitStore, folders *mockFolderStore, cache *mockListingCache) *RegistrationService {
	svc := NewRegistrationService(residents, visits, folders, nil, nil, nil, zap.NewNop())
	if cache != nil {
		svc.cache = cache
	}
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local) }
	return svc
}

func TestRegisterResident(t *testing.T) {
	residents := &mockResidentStore{}
	folders := newMockFolderStore()
	cache := &mockListingCache{}
	svc := newRegistrationService(residents, &mockVisitStore{}, folders, cache)

	result, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Juan Pérez",
		NationalID: "12345678",
		Photos:     encodePhotos(3),
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindResident, result.Kind)
	assert.Equal(t, 3, result.PhotoCount)
	assert.Equal(t, "Resident registered successfully with 3 photo(s)", result.Message)

	stored := residents.residents[result.ID]
	assert.Equal(t, "/fotos/Juan_Pérez_12345678", stored.FolderPath)
	assert.Equal(t, "/fotos/Juan_Pérez_12345678/photo_01.jpg", stored.PrimaryPhotoPath)

	meta := folders.metadata[stored.FolderPath]
	assert.Equal(t, "resident", meta.Kind)
	assert.Equal(t, 3, meta.PhotoCount)
	assert.NotEmpty(t, meta.BatchID)
	assert.Nil(t, meta.ExpiresAt)

	assert.Equal(t, []string{listingCacheKey}, cache.deleted)
}

func TestRegisterResidentMissingFields(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		NationalID: "12345678",
		Photos:     encodePhotos(1),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMissingFields))
}

func TestRegisterResidentNoPhotos(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoPhotos))
}

func TestRegisterResidentInvalidPhoto(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
		Photos:     []string{"%%%not-base64%%%"},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidPhoto))
}

func TestRegisterResidentDataURIPrefix(t *testing.T) {
	residents := &mockResidentStore{}
	svc := newRegistrationService(residents, &mockVisitStore{}, newMockFolderStore(), nil)

	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("raw"))
	result, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
		Photos:     []string{payload},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PhotoCount)
}

func TestRegisterResidentDuplicateKeepsFolder(t *testing.T) {
	residents := &mockResidentStore{insertErr: appErrors.ErrDuplicateIdentity}
	folders := newMockFolderStore()
	svc := newRegistrationService(residents, &mockVisitStore{}, folders, nil)

	_, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
		Photos:     encodePhotos(2),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateIdentity))
	// The batch already written for the rejected insert is left in place.
	assert.Len(t, folders.written["/fotos/Ana_99"], 2)
	assert.Empty(t, folders.deleted)
}

func TestRegisterResidentRetake(t *testing.T) {
	residents := &mockResidentStore{residents: map[int64]models.Resident{
		7: {ID: 7, Name: "Ana", NationalID: "99", FolderPath: "/fotos/Ana_99", PrimaryPhotoPath: "/fotos/Ana_99/photo_01.jpg"},
	}}
	folders := newMockFolderStore()
	svc := newRegistrationService(residents, &mockVisitStore{}, folders, nil)

	result, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
		Photos:     encodePhotos(2),
		RecordID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, "/fotos/Ana_99", result.FolderPath)
	assert.Equal(t, "Photos updated successfully with 2 photo(s)", result.Message)
	assert.Equal(t, []string{"/fotos/Ana_99"}, folders.removed)
	assert.Equal(t, int64(7), residents.lastUpdated.id)
	assert.Equal(t, "/fotos/Ana_99/photo_01.jpg", residents.lastUpdated.path)
}

func TestRegisterResidentRetakeNotFound(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterResident(context.Background(), RegisterResidentRequest{
		Name:       "Ana",
		NationalID: "99",
		Photos:     encodePhotos(1),
		RecordID:   42,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRegisterVisit(t *testing.T) {
	visits := &mockVisitStore{}
	folders := newMockFolderStore()
	svc := newRegistrationService(&mockResidentStore{}, visits, folders, nil)

	result, err := svc.RegisterVisit(context.Background(), RegisterVisitRequest{
		Name:       "Luis Gómez",
		NationalID: "555",
		Photos:     encodePhotos(1),
		ExpiresAt:  "2025-03-15T18:30",
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindVisit, result.Kind)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, time.Date(2025, 3, 15, 18, 30, 0, 0, time.Local), *result.ExpiresAt)
	assert.Equal(t, "Visit registered successfully with 1 photo(s). Valid until 15/03/2025 18:30", result.Message)

	meta := folders.metadata["/fotos/Luis_Gómez_555"]
	assert.Equal(t, "visit", meta.Kind)
	require.NotNil(t, meta.ExpiresAt)
}

func TestRegisterVisitMissingExpiry(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterVisit(context.Background(), RegisterVisitRequest{
		Name:       "Luis",
		NationalID: "555",
		Photos:     encodePhotos(1),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMissingExpiry))
}

func TestRegisterVisitInvalidExpiry(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.RegisterVisit(context.Background(), RegisterVisitRequest{
		Name:       "Luis",
		NationalID: "555",
		Photos:     encodePhotos(1),
		ExpiresAt:  "next tuesday",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidExpiry))
}

func TestRegisterVisitRetakeRefreshesExpiry(t *testing.T) {
	visits := &mockVisitStore{visits: map[int64]models.Visit{
		3: {ID: 3, Name: "Luis", NationalID: "555", FolderPath: "/fotos/Luis_555", ExpiresAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)},
	}}
	svc := newRegistrationService(&mockResidentStore{}, visits, newMockFolderStore(), nil)

	result, err := svc.RegisterVisit(context.Background(), RegisterVisitRequest{
		Name:       "Luis",
		NationalID: "555",
		Photos:     encodePhotos(4),
		ExpiresAt:  "2025-04-01T08:00",
		RecordID:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.PhotoCount)
	assert.Equal(t, time.Date(2025, 4, 1, 8, 0, 0, 0, time.Local), visits.visits[3].ExpiresAt)
	assert.Equal(t, "Photos updated successfully with 4 photo(s). Valid until 01/04/2025 08:00", result.Message)
}

func TestDeleteResident(t *testing.T) {
	residents := &mockResidentStore{residents: map[int64]models.Resident{
		1: {ID: 1, FolderPath: "/fotos/Ana_99"},
	}}
	folders := newMockFolderStore()
	cache := &mockListingCache{}
	svc := newRegistrationService(residents, &mockVisitStore{}, folders, cache)

	err := svc.Delete(context.Background(), models.KindResident, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/fotos/Ana_99"}, folders.deleted)
	assert.Empty(t, residents.residents)
	assert.Equal(t, []string{listingCacheKey}, cache.deleted)
}

func TestDeleteNotFoundTouchesNothing(t *testing.T) {
	folders := newMockFolderStore()
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, folders, nil)

	err := svc.Delete(context.Background(), models.KindVisit, 99)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, folders.deleted)
}

func TestDeleteFolderFailureStillRemovesRow(t *testing.T) {
	visits := &mockVisitStore{visits: map[int64]models.Visit{
		4: {ID: 4, FolderPath: "/fotos/Luis_555"},
	}}
	folders := newMockFolderStore()
	folders.deleteErr = errors.New("device busy")
	svc := newRegistrationService(&mockResidentStore{}, visits, folders, nil)

	err := svc.Delete(context.Background(), models.KindVisit, 4)
	require.NoError(t, err)
	assert.Empty(t, visits.visits)
}

func TestDeleteInvalidKind(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	err := svc.Delete(context.Background(), models.RecordKind("employee"), 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidKind))
}

func TestPrimaryPhoto(t *testing.T) {
	residents := &mockResidentStore{residents: map[int64]models.Resident{
		1: {ID: 1, PrimaryPhotoPath: "/fotos/Ana_99/photo_01.jpg"},
	}}
	folders := newMockFolderStore()
	// Minimal JPEG header so content detection resolves to image/jpeg.
	folders.photos["/fotos/Ana_99/photo_01.jpg"] = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00}
	svc := newRegistrationService(residents, &mockVisitStore{}, folders, nil)

	photo, err := svc.PrimaryPhoto(context.Background(), models.KindResident, 1)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", photo.MimeType)
	assert.NotEmpty(t, photo.Data)
}

func TestPrimaryPhotoRecordNotFound(t *testing.T) {
	svc := newRegistrationService(&mockResidentStore{}, &mockVisitStore{}, newMockFolderStore(), nil)

	_, err := svc.PrimaryPhoto(context.Background(), models.KindVisit, 12)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
