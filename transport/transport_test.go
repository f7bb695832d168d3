package transport

import (
	"context"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/namerace/internal/racetest"
	"github.com/st-keller/namerace/wire"
)

func TestNewConnectorValidates(t *testing.T) {
	_, err := NewConnector(ConnectorConfig{})
	assert.Error(t, err)

	_, err = NewConnector(ConnectorConfig{Host: "h", Port: 70000})
	assert.Error(t, err)

	c, err := NewConnector(ConnectorConfig{Host: wire.DefaultHost})
	require.NoError(t, err)
	assert.Equal(t, "api.minecraftservices.com:443", c.Addr())
	assert.Equal(t, wire.DefaultHost, c.Host())
	assert.Equal(t, DefaultDialTimeout, c.dialTimeout)
	assert.Equal(t, []string{"http/1.1"}, c.tlsConfig.NextProtos)
}

func TestConnectorDialAndRawRequest(t *testing.T) {
	srv := racetest.NewServer(t, racetest.Always(http.StatusTooManyRequests))

	c, err := NewConnector(ConnectorConfig{Host: racetest.Host, Addr: srv.Addr(), RootCAs: srv.Pool()})
	require.NoError(t, err)

	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	req, err := wire.AvailabilityRequest(racetest.Host, "Dream", "abc")
	require.NoError(t, err)
	p := req.NewPartial()
	require.NoError(t, p.Stage(conn))
	require.NoError(t, p.Complete(conn))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	code, err := wire.ReadStatus(conn)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, code)

	got := srv.Requests()
	require.Len(t, got, 1)
	assert.Equal(t, "PUT", got[0].Method)
	assert.Equal(t, "/minecraft/profile/name/Dream", got[0].Path)
	assert.Equal(t, "Bearer abc", got[0].Auth)
}

func TestConnectorRejectsUntrustedServer(t *testing.T) {
	srv := racetest.NewServer(t, racetest.Always(http.StatusOK))

	c, err := NewConnector(ConnectorConfig{Host: racetest.Host, Addr: srv.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.Dial(context.Background())
	assert.Error(t, err)
}

func TestLoadTrustStore(t *testing.T) {
	srv := racetest.NewServer(t, racetest.Always(http.StatusOK))

	dir := t.TempDir()
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.pem"), pemBytes, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	ts, err := LoadTrustStore(false, dir)
	require.NoError(t, err)
	require.Len(t, ts.Roots(), 1)
	assert.Empty(t, ts.Expired())

	c, err := NewConnector(ConnectorConfig{Host: racetest.Host, Addr: srv.Addr(), RootCAs: ts.Pool()})
	require.NoError(t, err)
	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	conn.Close()
}

func TestLoadTrustStoreErrors(t *testing.T) {
	_, err := LoadTrustStore(false, filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	_, err = LoadTrustStore(false, bad)
	assert.Error(t, err)
}

func TestBuildHTTP2Client(t *testing.T) {
	srv := racetest.NewHTTP2Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := BuildHTTP2Client(srv.Pool(), time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 2, resp.ProtoMajor)
}

func TestBuildHTTP2ClientFallsBackToHTTP1(t *testing.T) {
	srv := racetest.NewHTTP1Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := BuildHTTP2Client(srv.Pool(), time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, resp.ProtoMajor)
}
