package models

import (
	"time"

	appErrors "github.com/soto-labs/registro-api/pkg/errors"
)

// RecordKind distinguishes permanent residents from time-limited visits.
type RecordKind string

const (
	KindResident RecordKind = "resident"
	KindVisit    RecordKind = "visit"
)

// ParseRecordKind validates a kind received over the wire.
func ParseRecordKind(raw string) (RecordKind, error) {
	switch RecordKind(raw) {
	case KindResident:
		return KindResident, nil
	case KindVisit:
		return KindVisit, nil
	default:
		return "", appErrors.ErrInvalidKind
	}
}

// Resident is a permanent record. The national id is unique across residents.
type Resident struct {
	ID               int64     `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	NationalID       string    `db:"national_id" json:"national_id"`
	PrimaryPhotoPath string    `db:"primary_photo_path" json:"primary_photo_path"`
	FolderPath       string    `db:"folder_path" json:"folder_path"`
	RegisteredAt     time.Time `db:"registered_at" json:"registered_at"`
}

// Visit is a time-limited record. A visit whose expiry has passed is
// logically deleted for listing purposes even before the sweep removes it.
type Visit struct {
	ID               int64     `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	NationalID       string    `db:"national_id" json:"national_id"`
	PrimaryPhotoPath string    `db:"primary_photo_path" json:"primary_photo_path"`
	FolderPath       string    `db:"folder_path" json:"folder_path"`
	RegisteredAt     time.Time `db:"registered_at" json:"registered_at"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
}

// ExpiredVisit carries the fields the cleanup sweep needs per candidate.
type ExpiredVisit struct {
	ID         int64  `db:"id"`
	FolderPath string `db:"folder_path"`
}

// RecordListing bundles the active listing: every resident plus the visits
// that have not yet expired, both newest first.
type RecordListing struct {
	Residents []Resident `json:"residents"`
	Visits    []Visit    `json:"visits"`
}
