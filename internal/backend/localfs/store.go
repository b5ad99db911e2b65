// Package localfs stores project objects in a plain directory, typically a
// mounted network share or a folder kept in sync by another tool.
package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"modsync/internal/syncerr"
	"modsync/internal/util"
)

const scheme = "file://"

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid store path: %w", err)
	}

	return &Store{root: abs}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Connect(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}

	return nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", syncerr.New(syncerr.KindInvalidArgument, "invalid object key %q", key)
	}

	return filepath.Join(s.root, clean), nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	return util.AtomicWrite(p, bytes.NewReader(data))
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
	}

	return data, err
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(prefix))
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		dir = filepath.Dir(dir)
	}

	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if errors.Is(err, os.ErrNotExist) {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".modsync.tmp") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *Store) URL(key string) string {
	return scheme + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(key)))
}

func (s *Store) ParseURL(url string) (string, error) {
	rest, ok := strings.CutPrefix(url, scheme)
	if !ok {
		return "", fmt.Errorf("not a file url: %s", url)
	}

	rel, err := filepath.Rel(s.root, filepath.FromSlash(rest))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside store %s", url, s.root)
	}

	return filepath.ToSlash(rel), nil
}
