package broker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterLookupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())

	status, err := r.Register(Entry{Channel: "md.ticks", ShmName: "datablock.md.ticks", SecretHash: "abc"})
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	e, ok := r.Lookup("md.ticks")
	require.True(t, ok)
	require.Equal(t, "datablock.md.ticks", e.ShmName)

	reloaded := NewRegistry(path)
	require.NoError(t, reloaded.Load())
	e2, ok := reloaded.Lookup("md.ticks")
	require.True(t, ok)
	require.Equal(t, e, e2)
}

func TestRegisterConflictingShmNameIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())

	_, err := r.Register(Entry{Channel: "md.ticks", ShmName: "a"})
	require.NoError(t, err)

	status, err := r.Register(Entry{Channel: "md.ticks", ShmName: "b"})
	require.NoError(t, err)
	require.Equal(t, StatusConflict, status)
}

func TestDeregisterUnknownChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())

	status, err := r.Deregister("nope")
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, status)
}

func TestServerHandleDiscoverRequiresSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())
	_, err := r.Register(Entry{Channel: "md.ticks", ShmName: "a", SecretHash: HashSecret("hunter2")})
	require.NoError(t, err)

	s := &Server{registry: r, log: testLogger()}

	resp := s.handle(Envelope{Type: TypeDiscoverRequest, Request: Request{Channel: "md.ticks", SecretHash: HashSecret("wrong")}})
	require.Equal(t, StatusDenied, resp.Status)

	resp = s.handle(Envelope{Type: TypeDiscoverRequest, Request: Request{Channel: "md.ticks", SecretHash: HashSecret("hunter2")}})
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, "a", resp.ShmName)
}
