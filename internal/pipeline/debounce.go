package pipeline

import (
	"sync"
	"time"

	"modsync/internal/model"
)

// Debounce collapses bursts of events for the same path into the last one,
// emitted once the path has been quiet for delay.
func Debounce(inCh <-chan model.FileEvent, delay time.Duration) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			timers = make(map[string]*time.Timer)
			events = make(map[string]model.FileEvent)
		)

		for event := range inCh {
			path := event.Path

			mu.Lock()
			if t, ok := timers[path]; ok && t.Stop() {
				wg.Done()
			}

			events[path] = event
			wg.Add(1)
			timers[path] = time.AfterFunc(delay, func() {
				defer wg.Done()

				mu.Lock()
				ev, ok := events[path]
				delete(timers, path)
				delete(events, path)
				mu.Unlock()

				if ok {
					outCh <- ev
				}
			})
			mu.Unlock()
		}

		mu.Lock()
		for path, t := range timers {
			if t.Stop() {
				wg.Done()
				outCh <- events[path]
			}
		}
		mu.Unlock()

		wg.Wait()
		close(outCh)
	}()

	return outCh
}
