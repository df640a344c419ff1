package service

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ArtifactStore persists rendered documents and evidence images.
type ArtifactStore interface {
	// Store writes data under a fresh unique name inside folder and returns
	// its public URL. Failures are *StorageWriteFailedError.
	Store(ctx context.Context, data []byte, folder string) (string, error)
	// Fetch reads an object back by the URL Store returned.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// SignedURL returns a time-limited download link for url.
	SignedURL(ctx context.Context, url string) (string, error)
}

var extensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
}

// objectName builds {folder}/{uuid}{ext}, the extension following the
// detected content type.
func objectName(folder string, data []byte) (name, contentType string) {
	contentType = http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := extensions[contentType]
	if !ok {
		contentType = "application/octet-stream"
		ext = ".bin"
	}
	return path.Join(strings.Trim(folder, "/"), uuid.New().String()+ext), contentType
}

// MemoryArtifactStore keeps objects in a map. Used for development and tests.
type MemoryArtifactStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	writes  int
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)

// NewMemoryArtifactStore creates a store whose URLs start with baseURL
func NewMemoryArtifactStore(baseURL string) *MemoryArtifactStore {
	return &MemoryArtifactStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (s *MemoryArtifactStore) Store(ctx context.Context, data []byte, folder string) (string, error) {
	name, _ := objectName(folder, data)
	if err := ctx.Err(); err != nil {
		return "", &StorageWriteFailedError{Path: name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; exists {
		return "", &StorageWriteFailedError{Path: name, Err: ErrObjectExists}
	}
	s.objects[name] = append([]byte(nil), data...)
	s.writes++
	return s.baseURL + "/" + name, nil
}

func (s *MemoryArtifactStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, url)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, url)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryArtifactStore) SignedURL(ctx context.Context, url string) (string, error) {
	if _, err := s.Fetch(ctx, url); err != nil {
		return "", err
	}
	return url, nil
}

// Writes returns how many objects were stored
func (s *MemoryArtifactStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Delete removes an object. Tests use it to simulate lost artifacts.
func (s *MemoryArtifactStore) Delete(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, strings.TrimPrefix(url, s.baseURL+"/"))
}
