// Package localfs is the default blobstore.Store: a flat directory on the
// local filesystem, keyed by slash-containing keys flattened to nested
// directories. Suitable for single-node deployments and tests.
package localfs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/yourorg/csv-ingest/internal/blobstore"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) resolve(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) Save(_ context.Context, key string, data []byte) error {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(key))
	if os.IsNotExist(err) {
		return nil, blobstore.ErrNotFound
	}
	return data, err
}

func (s *Store) Path(_ context.Context, key string) (string, error) {
	path := s.resolve(key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", blobstore.ErrNotFound
	}
	return path, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := os.Remove(s.resolve(key))
	if os.IsNotExist(err) {
		return blobstore.ErrNotFound
	}
	return err
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.resolve(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

var _ blobstore.Store = (*Store)(nil)
