package dropbox

import (
	"testing"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/modsync", normalizePath("modsync/"))
	assert.Equal(t, "/a/b", normalizePath("/a/b"))
	assert.Equal(t, "/", normalizePath(""))
}

func TestURLRoundTrip(t *testing.T) {
	s := New(nil, "/modsync")
	assert.Equal(t, "/modsync/projects/p1/state.json", s.remotePath("projects/p1/state.json"))

	url := s.URL("projects/p1/blobs/abc")
	assert.Equal(t, "dropbox://modsync/projects/p1/blobs/abc", url)

	key, err := s.ParseURL(url)
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/blobs/abc", key)
}

func TestErrorClassification(t *testing.T) {
	notFound := files.DownloadAPIError{EndpointError: &files.DownloadError{
		Path: &files.LookupError{Tagged: dropbox.Tagged{Tag: files.LookupErrorNotFound}},
	}}
	assert.True(t, isDownloadNotFound(notFound))
	assert.False(t, isDownloadNotFound(files.DownloadAPIError{}))

	conflict := files.CreateFolderV2APIError{EndpointError: &files.CreateFolderError{
		Path: &files.WriteError{Tagged: dropbox.Tagged{Tag: files.WriteErrorConflict}},
	}}
	assert.True(t, isConflict(conflict))
}
