//go:build functional

// Package functional provides functional tests for the item API, the CORS
// behaviour and the item event feed.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/config"
	"github.com/vyrodovalexey/cors-demo/internal/model"
	"github.com/vyrodovalexey/cors-demo/internal/server"
	"github.com/vyrodovalexey/cors-demo/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

// Default test configuration values.
const (
	DefaultTestHost         = "127.0.0.1"
	DefaultTestTimeout      = 10 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	TestOrigin              = "http://frontend.test"
)

// TestServer runs a real server on an ephemeral port.
type TestServer struct {
	Server  *server.Server
	Store   *store.MemoryStore
	BaseURL string
	WSURL   string
	cancel  context.CancelFunc
	done    chan error
	stop    sync.Once
}

// NewTestServer starts a server seeded with the demo items and stops it
// when the test ends.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	host := DefaultTestHost
	if h := os.Getenv(EnvTestServerHost); h != "" {
		host = h
	}
	metrics := false
	if v := os.Getenv(EnvTestMetricsEnable); v != "" {
		metrics, _ = strconv.ParseBool(v)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	require.NoError(t, err, "listen")
	port := listener.Addr().(*net.TCPAddr).Port

	cfg := &config.Config{
		ServerPort:       port,
		LogLevel:         "error",
		ShutdownTimeout:  DefaultShutdownTimeout,
		MetricsEnabled:   metrics,
		CORSAllowHeaders: []string{"Content-Type", "Authorization"},
		SeedItems:        true,
		WebSocketEnabled: true,
	}
	itemStore := store.NewMemoryStore(store.DefaultItems()...)
	srv := server.New(cfg, zap.NewNop(), itemStore)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &TestServer{
		Server:  srv,
		Store:   itemStore,
		BaseURL: fmt.Sprintf("http://%s:%d", host, port),
		WSURL:   fmt.Sprintf("ws://%s:%d", host, port),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() {
		ts.done <- srv.Serve(ctx, listener, nil)
	}()

	t.Cleanup(ts.Stop)
	ts.waitForReady(t)
	return ts
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(DefaultTestTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.BaseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not become ready within %s", DefaultTestTimeout)
}

// Stop cancels the server context and waits for Serve to return.
func (ts *TestServer) Stop() {
	ts.stop.Do(func() {
		ts.cancel()
		select {
		case <-ts.done:
		case <-time.After(DefaultShutdownTimeout + time.Second):
		}
	})
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPClient sends requests to a TestServer.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	t       *testing.T
}

// NewHTTPClient creates a new HTTP client for testing.
func NewHTTPClient(t *testing.T, baseURL string) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		baseURL: baseURL,
		t:       t,
	}
}

// Do sends method path with body as raw JSON and the given headers. The
// request fails the test on transport errors.
func (c *HTTPClient) Do(method, path, body string, headers map[string]string) *Response {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err, "%s %s", method, path)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}
}

// FromOrigin returns the headers of a cross-origin browser request.
func FromOrigin() map[string]string {
	return map[string]string{"Origin": TestOrigin}
}

// DecodeJSON unmarshals the body of resp into a T.
func DecodeJSON[T any](t *testing.T, resp *Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(resp.Body, &v), "body: %s", resp.Body)
	return v
}

// ErrorMessage returns the error field of a JSON error body.
func ErrorMessage(t *testing.T, resp *Response) string {
	t.Helper()
	return DecodeJSON[model.ErrorResponse](t, resp).Error
}
