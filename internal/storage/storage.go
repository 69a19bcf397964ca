// Package storage implements the object store used for avatar uploads.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// AferoStore keeps uploaded objects on an afero filesystem and serves
// their public URLs off a base URL. Backed by afero.NewOsFs in production
// and afero.NewMemMapFs in tests.
type AferoStore struct {
	fs      afero.Fs
	baseURL string
}

// NewAferoStore creates a store rooted at the given filesystem. Public
// URLs are formed by joining baseURL, bucket and object path.
func NewAferoStore(fs afero.Fs, baseURL string) *AferoStore {
	return &AferoStore{fs: fs, baseURL: baseURL}
}

// Upload implements transport.ObjectStore. Existing objects at the same
// path are overwritten, which is what avatar upserts rely on.
func (s *AferoStore) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	full := filepath.Join(bucket, filepath.FromSlash(objectPath))
	if _, err := s.save(full, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload %s: %w", full, err)
	}
	return s.baseURL + "/" + path.Join(bucket, objectPath), nil
}

// Get opens a stored object for reading.
func (s *AferoStore) Get(ctx context.Context, bucket, objectPath string) (io.ReadCloser, error) {
	return s.fs.OpenFile(filepath.Join(bucket, filepath.FromSlash(objectPath)), os.O_RDONLY, 0)
}

// Delete removes a stored object.
func (s *AferoStore) Delete(ctx context.Context, bucket, objectPath string) error {
	return s.fs.Remove(filepath.Join(bucket, filepath.FromSlash(objectPath)))
}

func (s *AferoStore) save(p string, reader io.Reader) (int64, error) {
	if err := s.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, err
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, reader)
}
