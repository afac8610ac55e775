package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/soto-labs/registro-api/pkg/errors"
)

const (
	photoPrefix = "photo_"
	photoSuffix = ".jpg"
	sidecarName = "metadata.json"
)

// SidecarMetadata is the per-folder metadata file written next to the
// numbered photo files. It is rewritten wholesale on every capture batch.
type SidecarMetadata struct {
	Name         string     `json:"name"`
	NationalID   string     `json:"national_id"`
	Kind         string     `json:"kind"`
	RegisteredAt time.Time  `json:"registered_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PhotoCount   int        `json:"photo_count"`
	BatchID      string     `json:"batch_id"`
}

// FolderStore owns the on-disk representation of person records: one
// folder per record under a configured root, holding sequentially numbered
// photo files plus a single metadata sidecar.
type FolderStore struct {
	root   string
	logger *zap.Logger
}

// NewFolderStore ensures the root directory exists and returns a handle.
func NewFolderStore(root string, logger *zap.Logger) (*FolderStore, error) {
	if root == "" {
		root = "./fotos"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "resolve photo root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "create photo root")
	}
	return &FolderStore{root: abs, logger: logger}, nil
}

// Root exposes the absolute photo root path.
func (s *FolderStore) Root() string {
	return s.root
}

// RecordFolder builds the folder path for a new record:
// {root}/{sanitized name}_{national id}. The path is stable for the
// record's lifetime; retakes reuse it via the repository's stored value.
func (s *FolderStore) RecordFolder(name, nationalID string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%s", SanitizeFolderName(name), nationalID))
}

// EnsureFolder creates the folder if needed. Creating an existing folder
// is not an error.
func (s *FolderStore) EnsureFolder(folder string) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "create record folder")
	}
	return nil
}

// WritePhotos writes each payload as a sequentially numbered file
// (photo_01.jpg, photo_02.jpg, ...) and returns the paths in input order.
// A file already present at the same index is overwritten; files beyond
// the new count are left alone — RemovePhotos handles batch cleanup.
func (s *FolderStore) WritePhotos(folder string, photos [][]byte) ([]string, error) {
	paths := make([]string, 0, len(photos))
	for i, payload := range photos {
		path := filepath.Join(folder, fmt.Sprintf("%s%02d%s", photoPrefix, i+1, photoSuffix))
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, fmt.Sprintf("write photo %d", i+1))
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteMetadata rewrites the sidecar file wholesale. Previous content is
// never merged.
func (s *FolderStore) WriteMetadata(folder string, meta SidecarMetadata) error {
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "encode sidecar metadata")
	}
	path := filepath.Join(folder, sidecarName)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "write sidecar metadata")
	}
	return nil
}

// ReadMetadata loads the sidecar file from a record folder.
func (s *FolderStore) ReadMetadata(folder string) (*SidecarMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(folder, sidecarName))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "read sidecar metadata")
	}
	var meta SidecarMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "decode sidecar metadata")
	}
	return &meta, nil
}

// RemovePhotos deletes every numbered photo file in the folder, keeping
// the sidecar and the folder itself. Individual deletion failures are
// logged and skipped so a retake can still proceed.
func (s *FolderStore) RemovePhotos(folder string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "list record folder")
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isPhotoFile(name) {
			continue
		}
		if err := os.Remove(filepath.Join(folder, name)); err != nil {
			s.logger.Warn("failed to remove photo", zap.String("folder", folder), zap.String("file", name), zap.Error(err))
		}
	}
	return nil
}

// CountPhotos returns how many numbered photo files the folder holds.
func (s *FolderStore) CountPhotos(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "list record folder")
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && isPhotoFile(entry.Name()) {
			count++
		}
	}
	return count, nil
}

// ReadPhoto loads a stored photo file. The underlying os error stays
// reachable through Unwrap so callers can distinguish a missing file.
func (s *FolderStore) ReadPhoto(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "read photo")
	}
	return data, nil
}

// Delete recursively removes the folder and everything in it. A missing
// folder counts as already deleted.
func (s *FolderStore) Delete(folder string) error {
	if folder == "" {
		return nil
	}
	if err := os.RemoveAll(folder); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageIO.Code, appErrors.ErrStorageIO.Status, "delete record folder")
	}
	return nil
}

func isPhotoFile(name string) bool {
	return strings.HasPrefix(name, photoPrefix) && strings.HasSuffix(name, photoSuffix)
}
