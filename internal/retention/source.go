package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Source supplies the retention policies for a scope
type Source interface {
	Policies(ctx context.Context, scope string) ([]RetentionPolicy, error)
}

// StaticSource serves a fixed policy list
type StaticSource []RetentionPolicy

// Policies returns the static policies that apply to scope
func (s StaticSource) Policies(_ context.Context, scope string) ([]RetentionPolicy, error) {
	return InScope(s, scope), nil
}

// policyFile is the on-disk layout of a policy file
type policyFile struct {
	Policies []RetentionPolicy `yaml:"policies"`
}

// FileSource loads policies from a YAML file and reloads them on change
type FileSource struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.RWMutex
	policies []RetentionPolicy
}

// NewFileSource loads the policy file once and returns the source
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	s := &FileSource{
		path:     path,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Policies returns the loaded policies that apply to scope
func (s *FileSource) Policies(_ context.Context, scope string) ([]RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return InScope(s.policies, scope), nil
}

// Reload re-reads the policy file. The previous policies stay in place
// when the new file does not parse or validate.
func (s *FileSource) Reload() error {
	policies, err := LoadPolicyFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()

	s.logger.Info("loaded retention policies",
		zap.String("path", s.path),
		zap.Int("count", len(policies)))
	return nil
}

// Watch reloads the file whenever it changes until ctx is cancelled.
// The parent directory is watched so editors that replace the file on
// save are still picked up.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("policy watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("policy reload failed",
						zap.String("path", s.path),
						zap.Error(err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("policy watcher errors channel closed")
			}
			s.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}

// LoadPolicyFile parses and validates a YAML policy file
func LoadPolicyFile(path string) ([]RetentionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for i := range file.Policies {
		p := &file.Policies[i]
		p.Format = NormalizeFormat(p.Format)
		if p.Priority == "" {
			p.Priority = PriorityMedium
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, p.Format, err)
		}
	}

	return file.Policies, nil
}
