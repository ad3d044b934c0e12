package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// MemoryStorage is an in-process ObjectStorage, used by the CLI when no
// bucket is configured and in tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) ListObjects(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]ObjectInfo, 0)
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			results = append(results, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

func (m *MemoryStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	data, err := m.GetObject(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (m *MemoryStorage) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) UploadObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

var _ ObjectStorage = (*MemoryStorage)(nil)
