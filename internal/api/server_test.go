package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/pkg/config"
)

func TestServer_RunServesUntilCancelled(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := New(&config.Config{Env: "test", Port: "0"}, testLogger(), router)
	require.NoError(t, srv.Listen())
	require.NotEmpty(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ddalkkak-screener-api")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = http.Get("http://" + srv.Addr() + "/health")
	assert.Error(t, err)
}

func TestServer_ListenTwiceKeepsListener(t *testing.T) {
	srv := New(&config.Config{Port: "0"}, testLogger(), http.NotFoundHandler())
	assert.Empty(t, srv.Addr())

	require.NoError(t, srv.Listen())
	addr := srv.Addr()
	require.NoError(t, srv.Listen())
	assert.Equal(t, addr, srv.Addr())
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_ListenBusyPort(t *testing.T) {
	first := New(&config.Config{Port: "0"}, testLogger(), http.NotFoundHandler())
	require.NoError(t, first.Listen())
	defer first.Shutdown(context.Background())

	_, port, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	second := New(&config.Config{Port: port}, testLogger(), http.NotFoundHandler())
	err = second.Run(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}
