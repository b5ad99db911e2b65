package peer

import (
	"bytes"
	"context"
	"testing"

	"modsync/internal/backend"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	assert.Equal(t, Before, Compare(map[string]uint64{"a": 1}, map[string]uint64{"a": 2}))
	assert.Equal(t, After, Compare(map[string]uint64{"a": 2, "b": 1}, map[string]uint64{"a": 2}))
	assert.Equal(t, Concurrent, Compare(map[string]uint64{"a": 1}, map[string]uint64{"b": 1}))
	assert.Equal(t, Before, Compare(map[string]uint64{"a": 1}, map[string]uint64{"a": 1}))
	assert.Equal(t, After, Compare(map[string]uint64{"a": 1}, nil))
}

func TestMessageRoundTrip(t *testing.T) {
	data := []byte("payload")
	in := Message{
		Type:     MessagePut,
		OriginID: "n1",
		VClock:   map[string]uint64{"n1": 3, "n2": 1},
		Key:      "projects/p1/state.json",
		Checksum: Checksum(data),
		Data:     data,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, in))
	out, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.Error(t, WriteMessage(&buf, Message{Type: MessagePut, Key: "x"}))
}

func TestResponseRoundTrip(t *testing.T) {
	in := Response{Code: ResponseStale, Msg: "stale", VClock: map[string]uint64{"s": 2}, Data: []byte("a\nb")}

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, in))
	out, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func startServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(t.TempDir(), "127.0.0.1:0", "server")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestObjectsOverLoopback(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	c := NewClient(srv.Addr(), "alice")
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.Put(ctx, "projects/p1/blobs/k1", []byte("one")))
	require.NoError(t, c.Put(ctx, "projects/p1/blobs/k2", []byte("two")))

	got, err := c.Get(ctx, "projects/p1/blobs/k1")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	keys, err := c.List(ctx, "projects/p1/blobs/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"projects/p1/blobs/k1", "projects/p1/blobs/k2"}, keys)

	_, err = c.Get(ctx, "projects/p1/blobs/missing")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	key, err := c.ParseURL(c.URL("projects/p1/blobs/k1"))
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/blobs/k1", key)
}

func TestStaleStateIsRejected(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	alice := backend.NewObjectAdapter("p2p", NewClient(srv.Addr(), "alice"))
	bob := backend.NewObjectAdapter("p2p", NewClient(srv.Addr(), "bob"))

	aliceState, err := alice.GetState(ctx, "p1")
	require.NoError(t, err)
	bobState, err := bob.GetState(ctx, "p1")
	require.NoError(t, err)

	aliceState.Files["a.esp"] = model.FileRecord{Checksum: "1"}
	_, err = alice.PutState(ctx, aliceState)
	require.NoError(t, err)

	// bob's clock never saw alice's write
	bobClient := NewClient(srv.Addr(), "bob")
	err = bobClient.Put(ctx, "projects/p1/state.json", []byte(`{"projectId":"p1","version":1}`))
	assert.ErrorIs(t, err, syncerr.ErrStaleState)

	// through the adapter the version check catches it first
	bobState.Files["b.esp"] = model.FileRecord{Checksum: "2"}
	_, err = bob.PutState(ctx, bobState)
	assert.ErrorIs(t, err, syncerr.ErrStaleState)

	fresh, err := bob.GetState(ctx, "p1")
	require.NoError(t, err)
	fresh.Files["b.esp"] = model.FileRecord{Checksum: "2"}
	v, err := bob.PutState(ctx, fresh)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}
