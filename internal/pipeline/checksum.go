package pipeline

import (
	"sync"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/util"

	"go.uber.org/zap"
)

// ChecksumFilter drops write events that did not change file content.
type ChecksumFilter struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewChecksumFilter() *ChecksumFilter {
	return &ChecksumFilter{
		cache: make(map[string]string),
	}
}

// Seed primes the cache so the first event for an already-known file is
// only forwarded if its content differs.
func (cf *ChecksumFilter) Seed(path, checksum string) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.cache[path] = checksum
}

func (cf *ChecksumFilter) Run(inCh <-chan model.FileEvent) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if event.Type == model.EventRemove || event.Type == model.EventRename {
				cf.mu.Lock()
				delete(cf.cache, event.Path)
				cf.mu.Unlock()
				outCh <- event
				continue
			}

			sum, _, err := util.HashFile(event.Path)
			if err != nil {
				logger.Log.Debug("checksum failed, skipping",
					zap.String("path", event.Path),
					zap.Error(err))
				continue
			}

			cf.mu.Lock()
			prev, exists := cf.cache[event.Path]
			changed := !exists || prev != sum
			if changed {
				cf.cache[event.Path] = sum
			}
			cf.mu.Unlock()

			if changed {
				outCh <- event
			} else {
				logger.Log.Debug("checksum unchanged, skipping",
					zap.String("path", event.Path))
			}
		}
	}()

	return outCh
}
