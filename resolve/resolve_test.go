package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/namerace/internal/racetest"
	"github.com/st-keller/namerace/transport"
)

func TestHTTPResolverKnownName(t *testing.T) {
	srv := racetest.NewHTTP2Server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/droptime/Dream", r.URL.Path)
		_, _ = w.Write([]byte(`{"UNIX": 1792175400.25}`))
	})

	r := NewHTTPResolver(srv.URL, transport.BuildHTTP2Client(srv.Pool(), time.Second), nil)
	at, err := r.ReleaseInstant(context.Background(), "Dream", "")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1792175400, 250*int64(time.Millisecond)).UTC(), at)
}

func TestHTTPResolverOverHTTP1(t *testing.T) {
	srv := racetest.NewHTTP1Server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, 1, r.ProtoMajor)
		_, _ = w.Write([]byte(`{"UNIX": 1792175400}`))
	})

	r := NewHTTPResolver(srv.URL, transport.BuildHTTP2Client(srv.Pool(), time.Second), nil)
	at, err := r.ReleaseInstant(context.Background(), "Dream", "")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1792175400, 0).UTC(), at)
}

func TestHTTPResolverFallsBackToPreviousHolder(t *testing.T) {
	var uploaded map[string]string
	srv := racetest.NewHTTP2Server(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/droptime/Marc":
			w.WriteHeader(http.StatusNotFound)
		case "/upload-droptime":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&uploaded))
			_, _ = w.Write([]byte(`{"UNIX": 1792175400}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})

	r := NewHTTPResolver(srv.URL+"/", transport.BuildHTTP2Client(srv.Pool(), time.Second), nil)
	at, err := r.ReleaseInstant(context.Background(), "Marc", "OldOwner")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1792175400, 0).UTC(), at)
	assert.Equal(t, map[string]string{"name": "Marc", "prevOwner": "OldOwner"}, uploaded)
}

func TestHTTPResolverUnknown(t *testing.T) {
	srv := racetest.NewHTTP2Server(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/droptime/Free" {
			_, _ = w.Write([]byte(`{"error": "not dropping"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	r := NewHTTPResolver(srv.URL, transport.BuildHTTP2Client(srv.Pool(), time.Second), nil)

	_, err := r.ReleaseInstant(context.Background(), "Nobody", "")
	assert.ErrorIs(t, err, ErrUnknownRelease)

	_, err = r.ReleaseInstant(context.Background(), "Nobody", "Prev")
	assert.ErrorIs(t, err, ErrUnknownRelease)

	_, err = r.ReleaseInstant(context.Background(), "Free", "")
	assert.ErrorIs(t, err, ErrUnknownRelease)

	_, err = r.ReleaseInstant(context.Background(), "", "")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.FixedZone("x", 3600))
	got, err := Static{At: at}.ReleaseInstant(context.Background(), "any", "")
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
	assert.Equal(t, time.UTC, got.Location())

	_, err = Static{}.ReleaseInstant(context.Background(), "any", "")
	assert.ErrorIs(t, err, ErrUnknownRelease)
}

func TestFromUnix(t *testing.T) {
	assert.Equal(t, time.Unix(10, 500*int64(time.Millisecond)).UTC(), fromUnix(10.5))
	assert.Equal(t, time.Unix(10, 0).UTC(), fromUnix(10))
}
