package autostart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUnit(t *testing.T) {
	var b strings.Builder
	require.NoError(t, writeUnit(&b, "/opt/mod sync/modsync"))

	unit := b.String()
	assert.Contains(t, unit, "[Service]\n")
	assert.Contains(t, unit, `ExecStart="/opt/mod sync/modsync" serve`)
	assert.Contains(t, unit, "WantedBy=default.target")
}

func TestWritePlist(t *testing.T) {
	var b strings.Builder
	require.NoError(t, writePlist(&b, "/usr/local/bin/modsync"))

	p := b.String()
	assert.Contains(t, p, "<string>"+agentLabel+"</string>")
	assert.Contains(t, p, "<string>/usr/local/bin/modsync</string>\n\t\t<string>serve</string>")
}

func TestTaskCommand(t *testing.T) {
	assert.Equal(t, `"C:\Program Files\modsync.exe" serve`, taskCommand(`C:\Program Files\modsync.exe`))
}

func TestIsInstalledFollowsFile(t *testing.T) {
	l := &LinuxAutoStarter{dir: t.TempDir()}

	ok, err := l.IsInstalled()
	require.NoError(t, err)
	assert.False(t, ok)

	path, err := l.unitPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "modsync.service"))
}
