package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// archiveDir holds archived objects below the local driver root
const archiveDir = ".archive"

// LocalDriver implements ObjectStore on the local filesystem
type LocalDriver struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalDriver creates a new local filesystem driver
func NewLocalDriver(basePath string, logger *zap.Logger) *LocalDriver {
	return &LocalDriver{
		basePath: basePath,
		logger:   logger,
	}
}

// Name returns the driver name
func (d *LocalDriver) Name() string {
	return "local"
}

func (d *LocalDriver) fullPath(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return filepath.Join(d.basePath, filepath.FromSlash(clean)), nil
}

func (d *LocalDriver) archivePath(p string) (string, error) {
	full, err := d.fullPath(p)
	if err != nil {
		return "", err
	}
	rel, _ := filepath.Rel(d.basePath, full)
	return filepath.Join(d.basePath, archiveDir, rel), nil
}

// List returns the paths of all live objects starting with prefix
func (d *LocalDriver) List(ctx context.Context, prefix string) ([]string, error) {
	if _, err := os.Stat(d.basePath); err != nil {
		return nil, wrapFSError("list", d.basePath, err)
	}

	root := d.basePath
	if dir := path.Dir(prefix + "x"); dir != "." {
		root = filepath.Join(d.basePath, filepath.FromSlash(dir))
	}

	paths := []string{}
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(d.basePath, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(entry.Name(), ".") && strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, wrapFSError("list", prefix, err)
	}

	d.logger.Debug("LocalDriver.List",
		zap.String("prefix", prefix),
		zap.Int("count", len(paths)))

	return paths, nil
}

// Head returns the metadata of an object
func (d *LocalDriver) Head(ctx context.Context, p string) (ObjectInfo, error) {
	full, err := d.fullPath(p)
	if err != nil {
		return ObjectInfo{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return ObjectInfo{}, wrapFSError("head", p, err)
	}
	if info.IsDir() {
		return ObjectInfo{}, fmt.Errorf("head %s: is a directory: %w", p, ErrNotFound)
	}

	return ObjectInfo{
		Path:           p,
		SizeBytes:      info.Size(),
		LastModifiedAt: info.ModTime(),
		StorageClass:   "local",
		ProtectedAt:    d.protectedAt(full),
	}, nil
}

// Get opens an object for reading
func (d *LocalDriver) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := d.fullPath(p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, wrapFSError("get", p, err)
	}
	return f, nil
}

// Put writes an object atomically through a temp file in the same directory
func (d *LocalDriver) Put(ctx context.Context, p string, data io.Reader) error {
	full, err := d.fullPath(p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return wrapFSError("create parent directory", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return wrapFSError("create file", p, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p, err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return wrapFSError("put", p, err)
	}
	return nil
}

// Delete removes an object
func (d *LocalDriver) Delete(ctx context.Context, p string) error {
	full, err := d.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return wrapFSError("delete", p, err)
	}
	d.clearProtect(full)
	return nil
}

// Archive moves an object under the .archive directory
func (d *LocalDriver) Archive(ctx context.Context, p string) error {
	src, err := d.fullPath(p)
	if err != nil {
		return err
	}
	dst, err := d.archivePath(p)
	if err != nil {
		return err
	}
	return d.move("archive", p, src, dst)
}

// Restore moves an archived object back to its original path
func (d *LocalDriver) Restore(ctx context.Context, p string) error {
	src, err := d.archivePath(p)
	if err != nil {
		return err
	}
	dst, err := d.fullPath(p)
	if err != nil {
		return err
	}
	return d.move("restore", p, src, dst)
}

func (d *LocalDriver) move(op, p, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return wrapFSError(op, p, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return wrapFSError(op, p, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return wrapFSError(op, p, err)
	}

	d.logger.Debug("LocalDriver."+op,
		zap.String("path", p),
		zap.String("destination", dst))
	return nil
}

// Protect tags an object with the protect timestamp
func (d *LocalDriver) Protect(ctx context.Context, p string, at time.Time) error {
	full, err := d.fullPath(p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		return wrapFSError("protect", p, err)
	}

	value := at.UTC().Format(time.RFC3339)
	if err := setProtectAttr(full, value); err == nil {
		return nil
	} else if !errors.Is(err, errXattrUnsupported) {
		return wrapFSError("protect", p, err)
	}

	// Filesystems without user xattrs keep the tag in a sidecar file.
	sidecar := d.sidecarPath(full)
	if err := os.MkdirAll(filepath.Dir(sidecar), 0750); err != nil {
		return wrapFSError("protect", p, err)
	}
	if err := os.WriteFile(sidecar, []byte(value), 0640); err != nil {
		return wrapFSError("protect", p, err)
	}
	return nil
}

func (d *LocalDriver) protectedAt(full string) *time.Time {
	if v, err := getProtectAttr(full); err == nil {
		return parseProtectTag(v)
	}
	data, err := os.ReadFile(d.sidecarPath(full))
	if err != nil {
		return nil
	}
	return parseProtectTag(strings.TrimSpace(string(data)))
}

func (d *LocalDriver) clearProtect(full string) {
	_ = os.Remove(d.sidecarPath(full))
}

func (d *LocalDriver) sidecarPath(full string) string {
	rel, _ := filepath.Rel(d.basePath, full)
	return filepath.Join(d.basePath, ".protect", rel)
}

// HealthCheck verifies the driver is working
func (d *LocalDriver) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(d.basePath); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func wrapFSError(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, p, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, p, ErrPermission)
	default:
		return fmt.Errorf("%s %s: %w", op, p, err)
	}
}
