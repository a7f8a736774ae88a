package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/criteria"
)

type timestamped interface {
	Created() time.Time
}

// FileStore persists every record as a JSON document under basePath using
// afs, so any afs supported location (file://, mem://, cloud storage) works.
type FileStore[T any] struct {
	basePath    string
	fs          afs.Service
	keySelector func(*T) string
	mu          sync.RWMutex
}

// NewFileStore creates the base location if needed and returns the store.
func NewFileStore[T any](ctx context.Context, basePath string, keySelector func(*T) string) (*FileStore[T], error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fs := afs.New()
	basePath = url.Normalize(basePath, file.Scheme)
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &FileStore[T]{basePath: basePath, fs: fs, keySelector: keySelector}, nil
}

// Save writes the record document.
func (s *FileStore[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	id := s.keySelector(v)
	if id == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.recordPath(id)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save record to %s: %w", filePath, err)
	}
	return nil
}

// Load reads the record document.
func (s *FileStore[T]) Load(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check record %s: %w", id, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	ret := new(T)
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return ret, nil
}

// Delete removes the record document.
func (s *FileStore[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check record %s: %w", id, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	return s.fs.Delete(ctx, filePath)
}

// List reads every document, oldest first when records expose a creation time.
func (s *FileStore[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	var ret []*T
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", object.URL(), err)
		}
		record := new(T)
		if err = json.Unmarshal(data, record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", object.URL(), err)
		}
		if !criteria.Match(record, parameters) {
			continue
		}
		ret = append(ret, record)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		a, okA := any(ret[i]).(timestamped)
		b, okB := any(ret[j]).(timestamped)
		if !okA || !okB {
			return false
		}
		return a.Created().Before(b.Created())
	})
	return ret, nil
}

func (s *FileStore[T]) recordPath(id string) string {
	return url.Join(s.basePath, path.Base(id)+".json")
}

var _ dao.Service[string, struct{}] = (*FileStore[struct{}])(nil)
