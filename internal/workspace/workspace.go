// Package workspace is the local replica of a project: a directory under the
// configured workspace root plus a small manifest describing the last sync.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modsync/internal/model"
	"modsync/internal/pipeline"
	"modsync/internal/syncerr"
	"modsync/internal/util"
)

const (
	MetaDir      = ".modsync"
	manifestFile = "project.json"
)

// Manifest is persisted inside the project directory. Files is the index as
// of the last sync, used to keep authorship and skip rehashing unchanged files.
// Key is the project's asset key, shared with collaborators through invites.
type Manifest struct {
	ProjectID    string                      `json:"projectId"`
	Name         string                      `json:"name,omitempty"`
	Key          string                      `json:"key,omitempty"`
	Version      int64                       `json:"version"`
	Settings     map[string]any              `json:"settings,omitempty"`
	Metadata     map[string]any              `json:"metadata,omitempty"`
	LastSyncTime time.Time                   `json:"lastSyncTime,omitzero"`
	Files        map[string]model.FileRecord `json:"files,omitempty"`
}

type Workspace struct {
	root      string
	projectID string
	author    string
	ignore    []string
}

func New(baseDir, projectID, author string, ignore []string) (*Workspace, error) {
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || projectID == "." || projectID == ".." {
		return nil, syncerr.New(syncerr.KindInvalidArgument, "invalid project id %q", projectID)
	}

	root, err := filepath.Abs(filepath.Join(baseDir, projectID))
	if err != nil {
		return nil, fmt.Errorf("invalid workspace path: %w", err)
	}

	return &Workspace{
		root:      root,
		projectID: projectID,
		author:    author,
		ignore:    ignore,
	}, nil
}

// Projects lists the project ids with a workspace under baseDir.
func Projects(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(baseDir, entry.Name(), MetaDir)); err == nil {
			ids = append(ids, entry.Name())
		}
	}

	return ids, nil
}

func (w *Workspace) Root() string {
	return w.root
}

func (w *Workspace) ProjectID() string {
	return w.projectID
}

func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.root)
	return err == nil && info.IsDir()
}

func (w *Workspace) Ensure() error {
	if err := os.MkdirAll(filepath.Join(w.root, MetaDir), 0755); err != nil {
		return fmt.Errorf("failed to create project dir: %w", err)
	}

	return nil
}

// Abs resolves a slash-separated project path, rejecting escapes from the root.
func (w *Workspace) Abs(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", syncerr.New(syncerr.KindInvalidArgument, "invalid project path %q", rel)
	}

	return filepath.Join(w.root, clean), nil
}

// Rel converts an absolute path inside the workspace to its project path.
func (w *Workspace) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", syncerr.New(syncerr.KindInvalidArgument, "%s is outside project %s", abs, w.projectID)
	}

	return filepath.ToSlash(rel), nil
}

func (w *Workspace) LoadManifest() (Manifest, error) {
	m := Manifest{ProjectID: w.projectID}

	data, err := os.ReadFile(filepath.Join(w.root, MetaDir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return m, nil
}

func (w *Workspace) SaveManifest(m Manifest) error {
	m.ProjectID = w.projectID
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return util.AtomicWrite(filepath.Join(w.root, MetaDir, manifestFile), strings.NewReader(string(data)))
}

// Scan walks the project directory and fingerprints every tracked file.
func (w *Workspace) Scan(ctx context.Context) (*model.ProjectState, error) {
	if !w.Exists() {
		return nil, syncerr.New(syncerr.KindProjectNotFound, "project %s has no local workspace", w.projectID)
	}

	m, err := w.LoadManifest()
	if err != nil {
		return nil, err
	}

	state := model.NewProjectState(w.projectID)
	state.Version = m.Version
	state.Settings = m.Settings
	state.Metadata = m.Metadata
	state.LastSyncTime = m.LastSyncTime

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := w.Rel(path)
		if err != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if rel == MetaDir || pipeline.ShouldIgnoreDir(rel, w.ignore) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || pipeline.ShouldIgnore(rel, w.ignore) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rec, err := w.fingerprint(path, info, m.Files[rel])
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", rel, err)
		}
		state.Files[rel] = rec

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (w *Workspace) fingerprint(path string, info fs.FileInfo, known model.FileRecord) (model.FileRecord, error) {
	modTime := info.ModTime().UTC()

	if known.Checksum != "" && known.Size == info.Size() && known.Timestamp.Equal(modTime) {
		return known, nil
	}

	sum, size, err := util.HashFile(path)
	if err != nil {
		return model.FileRecord{}, err
	}

	rec := model.FileRecord{
		Checksum:  sum,
		Timestamp: modTime,
		Author:    w.author,
		Size:      size,
	}
	if known.Checksum == sum {
		rec.Author = known.Author
		rec.BlobKey = known.BlobKey
	}

	return rec, nil
}

func (w *Workspace) Open(rel string) (*os.File, error) {
	path, err := w.Abs(rel)
	if err != nil {
		return nil, err
	}

	return os.Open(path)
}

func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	path, err := w.Abs(rel)
	if err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}

// WriteFile atomically replaces rel and stamps it with modTime when non-zero.
func (w *Workspace) WriteFile(rel string, r io.Reader, modTime time.Time) error {
	path, err := w.Abs(rel)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, r); err != nil {
		return err
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			return fmt.Errorf("failed to set mtime on %s: %w", rel, err)
		}
	}

	return nil
}

func (w *Workspace) Remove(rel string) error {
	path, err := w.Abs(rel)
	if err != nil {
		return err
	}

	if err := util.RemoveIfExists(path); err != nil {
		return err
	}

	w.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

func (w *Workspace) pruneEmptyDirs(dir string) {
	for dir != w.root && strings.HasPrefix(dir, w.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
