package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"modsync/internal/model"
	"modsync/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan model.FileEvent) []model.FileEvent {
	var out []model.FileEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestShouldIgnore(t *testing.T) {
	ignore := []string{".git/**", "**/*.tmp", ".DS_Store", ".modsync/**"}

	assert.True(t, ShouldIgnore(".git/HEAD", ignore))
	assert.True(t, ShouldIgnore("Scripts/build.tmp", ignore))
	assert.True(t, ShouldIgnore("Meshes/.DS_Store", ignore))
	assert.True(t, ShouldIgnore(".modsync/project.json", ignore))
	assert.True(t, ShouldIgnore("Scripts/.quest.psc.123.modsync.tmp", nil))

	assert.False(t, ShouldIgnore("Scripts/quest.psc", ignore))
	assert.False(t, ShouldIgnore("plugin.esp", ignore))
}

func TestFilter(t *testing.T) {
	root := t.TempDir()
	in := make(chan model.FileEvent, 4)
	in <- model.FileEvent{Type: model.EventWrite, Path: filepath.Join(root, "a.esp")}
	in <- model.FileEvent{Type: model.EventWrite, Path: filepath.Join(root, ".git", "index")}
	in <- model.FileEvent{Type: model.EventWrite, Path: filepath.Join(root, "b.tmp")}
	close(in)

	out := collect(Filter(in, root, []string{".git/**", "**/*.tmp"}))
	require.Len(t, out, 1)
	assert.Equal(t, filepath.Join(root, "a.esp"), out[0].Path)
}

func TestDebounceCollapsesBursts(t *testing.T) {
	in := make(chan model.FileEvent, 10)
	out := Debounce(in, 30*time.Millisecond)

	for range 5 {
		in <- model.FileEvent{Type: model.EventWrite, Path: "a.esp"}
	}
	in <- model.FileEvent{Type: model.EventRemove, Path: "a.esp"}
	in <- model.FileEvent{Type: model.EventWrite, Path: "b.esp"}
	close(in)

	events := collect(out)
	require.Len(t, events, 2)

	byPath := map[string]model.EventType{}
	for _, ev := range events {
		byPath[ev.Path] = ev.Type
	}
	assert.Equal(t, model.EventRemove, byPath["a.esp"])
	assert.Equal(t, model.EventWrite, byPath["b.esp"])
}

func TestChecksumFilterSkipsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.esp")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	cf := NewChecksumFilter()
	in := make(chan model.FileEvent, 4)
	out := cf.Run(in)

	in <- model.FileEvent{Type: model.EventWrite, Path: path}
	in <- model.FileEvent{Type: model.EventWrite, Path: path}
	in <- model.FileEvent{Type: model.EventRemove, Path: path}
	close(in)

	events := collect(out)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventWrite, events[0].Type)
	assert.Equal(t, model.EventRemove, events[1].Type)
}

func TestChecksumFilterSeed(t *testing.T) {
	dir := t.TempDir()
	synced := filepath.Join(dir, "a.esp")
	edited := filepath.Join(dir, "b.esp")
	require.NoError(t, os.WriteFile(synced, []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(edited, []byte("v2"), 0644))

	cf := NewChecksumFilter()
	cf.Seed(synced, util.HashBytes([]byte("v1")))
	cf.Seed(edited, util.HashBytes([]byte("v1")))

	in := make(chan model.FileEvent, 4)
	out := cf.Run(in)

	in <- model.FileEvent{Type: model.EventWrite, Path: synced}
	in <- model.FileEvent{Type: model.EventWrite, Path: edited}
	close(in)

	events := collect(out)
	require.Len(t, events, 1)
	assert.Equal(t, edited, events[0].Path)
}

func TestShouldIgnoreDir(t *testing.T) {
	ignore := []string{".git/**", "node_modules", "**/*.tmp"}

	assert.True(t, ShouldIgnoreDir(".git", ignore))
	assert.True(t, ShouldIgnoreDir("tools/node_modules", ignore))
	assert.False(t, ShouldIgnoreDir("Scripts", ignore))
}
