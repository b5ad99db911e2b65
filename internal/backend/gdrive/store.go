// Package gdrive stores project objects as files in a Google Drive folder
// tree. Each key segment maps to one folder.
package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"modsync/internal/logger"
	"modsync/internal/syncerr"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
)

const (
	scheme     = "gdrive://"
	folderMime = "application/vnd.google-apps.folder"
)

type Store struct {
	mu      sync.RWMutex
	svc     *drive.Service
	folder  string
	rootID  string
	idCache map[string]string
}

func New(svc *drive.Service, folder string) *Store {
	return &Store{
		svc:     svc,
		folder:  strings.Trim(folder, "/"),
		idCache: make(map[string]string),
	}
}

func (s *Store) Connect(ctx context.Context) error {
	rootID, err := s.ensureFolders(ctx, "root", splitPath(s.folder), "")
	if err != nil {
		return fmt.Errorf("failed to prepare gdrive folder: %w", err)
	}
	s.rootID = rootID

	logger.Log.Info("gdrive store ready",
		zap.String("folder", s.folder),
		zap.String("folder_id", rootID))
	return nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	dir, name := path.Split(key)
	parentID, err := s.ensureFolders(ctx, s.rootID, splitPath(dir), "dir:")
	if err != nil {
		return fmt.Errorf("failed to create parent folders: %w", err)
	}

	existingID := s.getCachedID(key)
	if existingID == "" {
		existingID, err = s.findFile(ctx, name, parentID)
		if err != nil {
			return err
		}
	}

	if existingID != "" {
		_, err = s.svc.Files.Update(existingID, &drive.File{}).Media(bytes.NewReader(data)).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
		s.setCachedID(key, existingID)
		return nil
	}

	created, err := s.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(bytes.NewReader(data)).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}

	s.setCachedID(key, created.Id)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	fileID, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			s.deleteCachedID(key)
			return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	return io.ReadAll(resp.Body)
}

// List returns the files directly inside the folder named by prefix's
// directory part whose names start with the remainder.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir, namePrefix := path.Split(prefix)

	folderID, err := s.findFolderPath(ctx, splitPath(dir))
	if err != nil || folderID == "" {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and mimeType!='%s' and trashed=false", folderID, folderMime)

	var keys []string
	pageToken := ""
	for {
		call := s.svc.Files.List().Q(q).Fields("nextPageToken, files(id, name)").PageSize(1000).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}

		for _, f := range resp.Files {
			if strings.HasPrefix(f.Name, namePrefix) {
				key := dir + f.Name
				s.setCachedID(key, f.Id)
				keys = append(keys, key)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return keys, nil
}

func (s *Store) URL(key string) string {
	return scheme + s.folder + "/" + key
}

func (s *Store) ParseURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, scheme+s.folder+"/")
	if !ok {
		return "", fmt.Errorf("%s is outside gdrive folder %s", url, s.folder)
	}

	return key, nil
}

func (s *Store) lookup(ctx context.Context, key string) (string, error) {
	if id := s.getCachedID(key); id != "" {
		return id, nil
	}

	dir, name := path.Split(key)
	parentID, err := s.findFolderPath(ctx, splitPath(dir))
	if err != nil {
		return "", err
	}

	var fileID string
	if parentID != "" {
		fileID, err = s.findFile(ctx, name, parentID)
		if err != nil {
			return "", err
		}
	}

	if fileID == "" {
		return "", syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
	}

	s.setCachedID(key, fileID)
	return fileID, nil
}

// ensureFolders walks parts below parentID, creating missing folders. Folder
// ids are cached under cachePrefix when it is non-empty.
func (s *Store) ensureFolders(ctx context.Context, parentID string, parts []string, cachePrefix string) (string, error) {
	for i, part := range parts {
		cacheKey := cachePrefix + strings.Join(parts[:i+1], "/")
		if cachePrefix != "" {
			if id := s.getCachedID(cacheKey); id != "" {
				parentID = id
				continue
			}
		}

		id, err := s.findFolder(ctx, part, parentID)
		if err != nil {
			return "", err
		}

		if id == "" {
			id, err = s.createFolder(ctx, part, parentID)
			if err != nil {
				return "", err
			}
		}

		if cachePrefix != "" {
			s.setCachedID(cacheKey, id)
		}
		parentID = id
	}

	return parentID, nil
}

func (s *Store) findFolderPath(ctx context.Context, parts []string) (string, error) {
	parentID := s.rootID
	for i, part := range parts {
		cacheKey := "dir:" + strings.Join(parts[:i+1], "/")
		if id := s.getCachedID(cacheKey); id != "" {
			parentID = id
			continue
		}

		id, err := s.findFolder(ctx, part, parentID)
		if err != nil || id == "" {
			return "", err
		}

		s.setCachedID(cacheKey, id)
		parentID = id
	}

	return parentID, nil
}

func (s *Store) findFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false", escapeName(name), parentID, folderMime)
	return s.findOne(ctx, q)
}

func (s *Store) findFile(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType!='%s' and trashed=false", escapeName(name), parentID, folderMime)
	return s.findOne(ctx, q)
}

func (s *Store) findOne(ctx context.Context, q string) (string, error) {
	list, err := s.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

func (s *Store) createFolder(ctx context.Context, name, parentID string) (string, error) {
	created, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMime,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	return created.Id, nil
}

func (s *Store) getCachedID(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idCache[key]
}

func (s *Store) setCachedID(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCache[key] = id
}

func (s *Store) deleteCachedID(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idCache, key)
}
