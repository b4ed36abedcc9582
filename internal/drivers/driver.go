package drivers

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned (wrapped) by every ObjectStore implementation
var (
	ErrNotFound   = errors.New("object not found")
	ErrPermission = errors.New("permission denied")
)

// ProtectTag is the tag or attribute name that marks an artifact as
// protected by a previous run. Its value is an RFC 3339 timestamp.
const ProtectTag = "reclaimer-protected-at"

// ObjectInfo is the metadata of one stored artifact
type ObjectInfo struct {
	Path           string
	SizeBytes      int64
	LastModifiedAt time.Time
	StorageClass   string
	Archived       bool // already in a cold tier
	ProtectedAt    *time.Time
}

// IsArchiveClass reports whether an S3 storage class is a cold tier
func IsArchiveClass(class string) bool {
	switch class {
	case "GLACIER", "GLACIER_IR", "DEEP_ARCHIVE":
		return true
	default:
		return false
	}
}

// ObjectStore is the storage contract the engine runs against. Paths are
// slash separated keys relative to the store root.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Head(ctx context.Context, path string) (ObjectInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Put(ctx context.Context, path string, data io.Reader) error
	Delete(ctx context.Context, path string) error

	// Archive moves an object to a colder tier; Restore reverses it.
	Archive(ctx context.Context, path string) error
	Restore(ctx context.Context, path string) error

	// Protect records that the object was protected at the given time.
	Protect(ctx context.Context, path string, at time.Time) error
}

func parseProtectTag(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
