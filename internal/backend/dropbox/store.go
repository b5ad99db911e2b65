// Package dropbox stores project objects as files under a Dropbox folder.
package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"modsync/internal/logger"
	"modsync/internal/syncerr"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"go.uber.org/zap"
)

const scheme = "dropbox://"

// The SDK client takes no context; calls check ctx before starting.
type Store struct {
	client files.Client
	folder string
}

func New(client files.Client, folder string) *Store {
	return &Store{client: client, folder: normalizePath(folder)}
}

func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ensureFolder(s.client, s.folder); err != nil {
		return fmt.Errorf("failed to prepare dropbox folder: %w", err)
	}

	logger.Log.Info("dropbox store ready",
		zap.String("folder", s.folder))
	return nil
}

func (s *Store) remotePath(key string) string {
	return s.folder + "/" + strings.TrimPrefix(key, "/")
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	arg := files.NewUploadArg(s.remotePath(key))
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
	arg.Autorename = false

	if _, err := s.client.Upload(arg, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, content, err := s.client.Download(files.NewDownloadArg(s.remotePath(key)))
	if err != nil {
		if isDownloadNotFound(err) {
			return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	defer func(content io.ReadCloser) {
		_ = content.Close()
	}(content)

	return io.ReadAll(content)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}

	arg := files.NewListFolderArg(strings.TrimSuffix(s.remotePath(dir), "/"))
	arg.Recursive = true

	resp, err := s.client.ListFolder(arg)
	if err != nil {
		if isListNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	var keys []string
	for {
		for _, entry := range resp.Entries {
			f, ok := entry.(*files.FileMetadata)
			if !ok {
				continue
			}

			key, ok := strings.CutPrefix(f.PathDisplay, s.folder+"/")
			if ok && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}

		if !resp.HasMore {
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err = s.client.ListFolderContinue(files.NewListFolderContinueArg(resp.Cursor))
		if err != nil {
			return nil, fmt.Errorf("failed to continue listing %s: %w", prefix, err)
		}
	}

	return keys, nil
}

func (s *Store) URL(key string) string {
	return scheme + strings.TrimPrefix(s.folder, "/") + "/" + key
}

func (s *Store) ParseURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, scheme+strings.TrimPrefix(s.folder, "/")+"/")
	if !ok {
		return "", fmt.Errorf("%s is outside dropbox folder %s", url, s.folder)
	}

	return key, nil
}
