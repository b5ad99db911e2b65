package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/pipeline"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 300 * time.Millisecond

type Watcher struct {
	ws      *Workspace
	fw      *fsnotify.Watcher
	eventCh chan model.FileEvent
	doneCh  chan struct{}
}

func NewWatcher(ws *Workspace, bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 100
	}

	return &Watcher{
		ws:      ws,
		fw:      fw,
		eventCh: make(chan model.FileEvent, bufferSize),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching and returns the debounced change stream. Each change
// carries the project path and the given author. Files whose content still
// matches the last synced manifest are not reported.
func (w *Watcher) Start(author string) (<-chan model.ProjectChange, error) {
	if !w.ws.Exists() {
		return nil, fmt.Errorf("source directory not found: %s", w.ws.Root())
	}

	m, err := w.ws.LoadManifest()
	if err != nil {
		return nil, err
	}

	if err := w.addRecursive(w.ws.Root()); err != nil {
		return nil, err
	}

	go w.run()

	logger.Log.Info("watcher started",
		zap.String("project", w.ws.ProjectID()),
		zap.String("dir", w.ws.Root()))

	filtered := pipeline.Filter(w.eventCh, w.ws.Root(), append([]string{MetaDir + "/**"}, w.ws.ignore...))
	settled := pipeline.Debounce(filtered, debounceDelay)
	checksums := pipeline.NewChecksumFilter()
	for rel, rec := range m.Files {
		if path, err := w.ws.Abs(rel); err == nil {
			checksums.Seed(path, rec.Checksum)
		}
	}
	changed := checksums.Run(settled)

	outCh := make(chan model.ProjectChange, cap(w.eventCh))
	go func() {
		defer close(outCh)

		for event := range changed {
			rel, err := w.ws.Rel(event.Path)
			if err != nil {
				continue
			}

			outCh <- model.ProjectChange{
				ProjectID:  w.ws.ProjectID(),
				Path:       rel,
				ChangeType: event.Type.ChangeType(),
				Author:     author,
				Timestamp:  event.Timestamp,
			}
		}
	}()

	return outCh, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel, err := w.ws.Rel(path); err == nil && rel != "." && (rel == MetaDir || pipeline.ShouldIgnoreDir(rel, w.ws.ignore)) {
				return filepath.SkipDir
			}

			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping",
				zap.String("project", w.ws.ProjectID()))
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			eventType := toEventType(fsEvent.Op)
			if eventType == "" {
				continue
			}

			if fsEvent.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsEvent.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", fsEvent.Name),
							zap.Error(err))
					}
					continue
				}
			}

			event := model.FileEvent{
				Type:      eventType,
				Path:      fsEvent.Name,
				Timestamp: time.Now(),
			}

			select {
			case w.eventCh <- event:
			default:
				logger.Log.Warn("event channel is full, dropping event",
					zap.String("path", fsEvent.Name))
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

func (w *Watcher) Stop() {
	close(w.doneCh)
	_ = w.fw.Close()
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	case op.Has(fsnotify.Remove):
		return model.EventRemove
	case op.Has(fsnotify.Rename):
		return model.EventRename
	default:
		return ""
	}
}
