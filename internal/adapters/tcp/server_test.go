package tcp

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corey/linecheck/internal/domain/search"
	"github.com/corey/linecheck/internal/ports"
	"github.com/corey/linecheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Server: accept loop, concurrency ceiling, shutdown, TLS
// =============================================================================

// startServer runs a server for strategy on a free loopback port.
func startServer(t *testing.T, strategy ports.Strategy, hcfg HandlerConfig, scfg ServerConfig) *Server {
	t.Helper()
	scfg.Addr = "127.0.0.1:0"
	if scfg.PollInterval == 0 {
		scfg.PollInterval = 20 * time.Millisecond
	}
	srv := NewServer(scfg, NewHandler(strategy, hcfg, nil), nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func clientFor(srv *Server) *Client {
	return NewClient(srv.Addr().String(), nil)
}

func writeTarget(t *testing.T, content string) ports.Target {
	t.Helper()
	return ports.Target{Path: testutil.WriteFile(t, t.TempDir(), "data.txt", content)}
}

func TestServer_ExactLineRoundtrip(t *testing.T) {
	target := writeTarget(t, "apple\nbanana\ncherry\n")
	snap, err := search.NewSnapshot(t.Context(), target, nil)
	require.NoError(t, err)
	srv := startServer(t, snap, HandlerConfig{}, ServerConfig{})
	c := clientFor(srv)

	resp, err := c.Query(t.Context(), "banana")
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)

	resp, err = c.Query(t.Context(), "pineapple")
	require.NoError(t, err)
	assert.Equal(t, RespNotFound, resp)

	resp, err = c.Query(t.Context(), "  cherry\r\n")
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)
}

func TestServer_ExactAndSubstringDiverge(t *testing.T) {
	target := writeTarget(t, "applesauce\n")

	snap, err := search.NewSnapshot(t.Context(), target, nil)
	require.NoError(t, err)
	exact := startServer(t, snap, HandlerConfig{}, ServerConfig{})
	substring := startServer(t, search.NewScan(target, nil), HandlerConfig{}, ServerConfig{})

	resp, err := clientFor(exact).Query(t.Context(), "apple")
	require.NoError(t, err)
	assert.Equal(t, RespNotFound, resp)

	resp, err = clientFor(substring).Query(t.Context(), "apple")
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)
}

func TestServer_RejectedRequestsSkipSearch(t *testing.T) {
	strategy := &stubStrategy{found: true}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{})
	c := clientFor(srv)

	tests := []struct {
		name    string
		payload []byte
		want    Response
	}{
		{"no data", nil, RespNoData},
		{"invalid utf8", []byte{0xff, 0xfe, 0x00}, RespInvalidUTF8},
		{"blank query", []byte("  \x00"), RespEmptyQuery},
		{"terminator only", []byte{0x00}, RespEmptyQuery},
		{"oversized", bytes.Repeat([]byte("a"), 2000), RespPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Send(t.Context(), tt.payload, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)
		})
	}
	assert.Equal(t, int32(0), strategy.calls.Load())
}

func TestServer_PayloadLimitBoundary(t *testing.T) {
	strategy := &stubStrategy{found: true}
	srv := startServer(t, strategy, HandlerConfig{MaxPayload: 16}, ServerConfig{})
	c := clientFor(srv)

	// 15 bytes plus the terminator is exactly at the limit.
	resp, err := c.Query(t.Context(), strings.Repeat("a", 15))
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)

	resp, err = c.Query(t.Context(), strings.Repeat("a", 16))
	require.NoError(t, err)
	assert.Equal(t, RespPayloadTooLarge, resp)
	assert.Equal(t, int32(1), strategy.calls.Load())
}

func TestServer_OversizedRepliesWithoutWaitingForEnd(t *testing.T) {
	srv := startServer(t, &stubStrategy{}, HandlerConfig{}, ServerConfig{})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// No terminator and no half-close: only the size check can end the read.
	_, err = conn.Write(bytes.Repeat([]byte("x"), 1500))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	reply, _ := io.ReadAll(conn)
	assert.Equal(t, string(RespPayloadTooLarge), string(reply))
}

func TestServer_TerminatorEndsRequestWithoutHalfClose(t *testing.T) {
	strategy := &stubStrategy{found: true}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{})

	resp, err := clientFor(srv).Send(t.Context(), []byte("banana\x00"), false)
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)
	assert.Equal(t, "banana", strategy.lastQuery())
}

func TestServer_ReadTimeoutEndsRequest(t *testing.T) {
	strategy := &stubStrategy{found: true}
	srv := startServer(t, strategy, HandlerConfig{ReadTimeout: 100 * time.Millisecond}, ServerConfig{})

	resp, err := clientFor(srv).Send(t.Context(), []byte("banana"), false)
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)
	assert.Equal(t, "banana", strategy.lastQuery())
}

func TestServer_Idempotent(t *testing.T) {
	target := writeTarget(t, "banana\n")
	snap, err := search.NewSnapshot(t.Context(), target, nil)
	require.NoError(t, err)
	c := clientFor(startServer(t, snap, HandlerConfig{}, ServerConfig{}))

	for i := 0; i < 10; i++ {
		resp, err := c.Query(t.Context(), "banana")
		require.NoError(t, err)
		assert.Equal(t, RespExists, resp)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	target := writeTarget(t, "alpha\nbeta\ngamma\n")
	snap, err := search.NewSnapshot(t.Context(), target, nil)
	require.NoError(t, err)
	srv := startServer(t, snap, HandlerConfig{}, ServerConfig{})
	c := clientFor(srv)

	queries := map[string]Response{
		"alpha": RespExists,
		"beta":  RespExists,
		"gamma": RespExists,
		"delta": RespNotFound,
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 16; i++ {
		for q, want := range queries {
			wg.Add(1)
			go func(q string, want Response) {
				defer wg.Done()
				got, err := c.Query(context.Background(), q)
				if err != nil {
					errs <- err.Error()
					return
				}
				if got != want {
					errs <- q + ": " + got.Label()
				}
			}(q, want)
		}
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	assert.Equal(t, uint64(64), srv.Accepted())
}

func TestServer_StopReleasesSocket(t *testing.T) {
	srv := startServer(t, &stubStrategy{}, HandlerConfig{}, ServerConfig{})
	addr := srv.Addr().String()

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "stop is idempotent")

	select {
	case <-srv.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
	assert.NoError(t, srv.Err())
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, NewHandler(&stubStrategy{}, HandlerConfig{}, nil), nil)
	assert.NoError(t, srv.Stop())
	assert.Nil(t, srv.Addr())
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	first := startServer(t, &stubStrategy{}, HandlerConfig{}, ServerConfig{})
	second := NewServer(ServerConfig{Addr: first.Addr().String()}, NewHandler(&stubStrategy{}, HandlerConfig{}, nil), nil)
	assert.Error(t, second.Start())
}

func TestServer_StopWaitsForInFlight(t *testing.T) {
	strategy := &stubStrategy{found: true, release: make(chan struct{})}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{ShutdownGrace: 5 * time.Second})

	result := make(chan Response, 1)
	go func() {
		resp, _ := clientFor(srv).Query(context.Background(), "banana")
		result <- resp
	}()
	require.Eventually(t, func() bool { return strategy.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()

	time.Sleep(50 * time.Millisecond)
	close(strategy.release)

	select {
	case resp := <-result:
		assert.Equal(t, RespExists, resp)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight query did not complete")
	}
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestServer_GraceElapsedForceCloses(t *testing.T) {
	// release is never closed; the handler only returns when its context ends.
	strategy := &stubStrategy{found: true, release: make(chan struct{})}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{ShutdownGrace: 100 * time.Millisecond})

	go func() { _, _ = clientFor(srv).Query(context.Background(), "banana") }()
	require.Eventually(t, func() bool { return strategy.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, srv.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, srv.Active())
}

func TestServer_MaxConnectionsCeiling(t *testing.T) {
	strategy := &stubStrategy{found: true, release: make(chan struct{})}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{MaxConnections: 1})
	c := clientFor(srv)

	results := make(chan Response, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, _ := c.Query(context.Background(), "banana")
			results <- resp
		}()
	}

	require.Eventually(t, func() bool { return srv.Accepted() == 1 }, 2*time.Second, 5*time.Millisecond)
	// The second connection sits in the backlog until the slot frees up.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uint64(1), srv.Accepted())
	assert.Equal(t, 1, srv.Active())

	close(strategy.release)
	for i := 0; i < 2; i++ {
		select {
		case resp := <-results:
			assert.Equal(t, RespExists, resp)
		case <-time.After(5 * time.Second):
			t.Fatal("queued query did not complete")
		}
	}
	assert.Equal(t, uint64(2), srv.Accepted())
}

func TestServer_AcceptFailureEndsLoop(t *testing.T) {
	srv := startServer(t, &stubStrategy{}, HandlerConfig{}, ServerConfig{})

	// Closing the listener out from under the loop is a non-timeout error.
	require.NoError(t, srv.listener.Close())

	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not exit")
	}
	assert.Error(t, srv.Err())
}

func TestServer_TLSRoundtrip(t *testing.T) {
	cert := testutil.SelfSigned(t)
	target := writeTarget(t, "banana\n")
	snap, err := search.NewSnapshot(t.Context(), target, nil)
	require.NoError(t, err)
	srv := startServer(t, snap, HandlerConfig{}, ServerConfig{TLS: cert.ServerConfig()})

	c := NewClient(srv.Addr().String(), cert.ClientConfig())
	resp, err := c.Query(t.Context(), "banana")
	require.NoError(t, err)
	assert.Equal(t, RespExists, resp)

	resp, err = c.Query(t.Context(), "pineapple")
	require.NoError(t, err)
	assert.Equal(t, RespNotFound, resp)
}

func TestServer_TLSRejectsPlaintext(t *testing.T) {
	cert := testutil.SelfSigned(t)
	strategy := &stubStrategy{found: true}
	srv := startServer(t, strategy, HandlerConfig{}, ServerConfig{TLS: cert.ServerConfig()})

	resp, _ := clientFor(srv).Query(t.Context(), "banana")
	assert.NotEqual(t, RespExists, resp)
	assert.Equal(t, int32(0), strategy.calls.Load())
}
