// Package archive stores exported statement packs content-addressed
// by SHA-256. Packs are immutable evidence; the store offers put, get
// and existence checks, never deletion.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned for keys with no stored pack.
var ErrNotFound = errors.New("archive: pack not found")

// Store is the content-addressed pack storage contract. Keys are
// "sha256:<hex>" of the stored bytes.
type Store interface {
	// Put persists data and returns its content key. Storing the same
	// bytes twice is a no-op returning the same key.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves the pack for a content key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether a pack is stored under the key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Key computes the content key of data.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func rawHex(key string) (string, error) {
	raw, ok := strings.CutPrefix(key, "sha256:")
	if !ok {
		return "", fmt.Errorf("archive: invalid key format: %s", key)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("archive: invalid key hex: %w", err)
	}
	return raw, nil
}

// FileStore keeps packs on the local filesystem, one file per key.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: ensure dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(data)
	path := filepath.Join(s.baseDir, key[len("sha256:"):]+".pack")
	if _, err := os.Stat(path); err == nil {
		return key, nil
	}

	// Write to a temp file, then rename, so readers never see a
	// partial pack.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: write pack: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("archive: commit pack: %w", err)
	}
	return key, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, raw+".pack"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read pack: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".pack"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
