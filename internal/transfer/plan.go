// Package transfer turns the difference between two replicas, plus any
// conflict decisions, into file operations and runs them against a backend.
package transfer

import (
	"maps"
	"slices"

	"modsync/internal/model"
)

type Download struct {
	Path   string
	Record model.FileRecord
}

// Plan collects resolution decisions during a sync. Finalize then adds the
// set difference for the sync direction. Decided paths are never overridden.
type Plan struct {
	ProjectID string

	Uploads   []string
	Downloads []Download
	Deletes   []string
	Held      []string

	push   map[string]struct{}
	pull   map[string]model.FileRecord
	delete map[string]struct{}
	hold   map[string]struct{}
}

func NewPlan(projectID string) *Plan {
	return &Plan{
		ProjectID: projectID,
		push:      make(map[string]struct{}),
		pull:      make(map[string]model.FileRecord),
		delete:    make(map[string]struct{}),
		hold:      make(map[string]struct{}),
	}
}

func (p *Plan) Push(path string) {
	p.forget(path)
	p.push[path] = struct{}{}
}

func (p *Plan) Pull(path string, remote model.FileRecord) {
	p.forget(path)
	p.pull[path] = remote
}

func (p *Plan) DeleteRemote(path string) {
	p.forget(path)
	p.delete[path] = struct{}{}
}

// Hold excludes path from this sync entirely.
func (p *Plan) Hold(path string) {
	p.forget(path)
	p.hold[path] = struct{}{}
}

func (p *Plan) forget(path string) {
	delete(p.push, path)
	delete(p.pull, path)
	delete(p.delete, path)
	delete(p.hold, path)
}

func (p *Plan) decided(path string) bool {
	if _, ok := p.push[path]; ok {
		return true
	}
	if _, ok := p.pull[path]; ok {
		return true
	}
	if _, ok := p.delete[path]; ok {
		return true
	}
	_, ok := p.hold[path]
	return ok
}

// Finalize fills the operation lists. An empty direction runs only the
// recorded decisions. Bidirectional pushes first, so a path that is pushed is
// never also pulled.
func (p *Plan) Finalize(local, remote *model.ProjectState, dir model.Direction) {
	uploads := maps.Clone(p.push)
	downloads := maps.Clone(p.pull)

	if dir.Pushes() {
		for path, rec := range local.Files {
			if p.decided(path) {
				continue
			}
			if r, ok := remote.Files[path]; !ok || r.Checksum != rec.Checksum {
				uploads[path] = struct{}{}
			}
		}
	}

	if dir.Pulls() {
		for path, rec := range remote.Files {
			if p.decided(path) {
				continue
			}
			if _, ok := uploads[path]; ok {
				continue
			}
			if l, ok := local.Files[path]; !ok || l.Checksum != rec.Checksum {
				downloads[path] = rec
			}
		}
	}

	p.Uploads = slices.Sorted(maps.Keys(uploads))
	p.Deletes = slices.Sorted(maps.Keys(p.delete))
	p.Held = slices.Sorted(maps.Keys(p.hold))

	p.Downloads = p.Downloads[:0]
	for _, path := range slices.Sorted(maps.Keys(downloads)) {
		p.Downloads = append(p.Downloads, Download{Path: path, Record: downloads[path]})
	}
}

func (p *Plan) Empty() bool {
	return len(p.Uploads) == 0 && len(p.Downloads) == 0 && len(p.Deletes) == 0
}
