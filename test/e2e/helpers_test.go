//go:build e2e

package e2e_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// Environment variable names for E2E test configuration.
const (
	EnvServerURL = "E2E_SERVER_URL"
	EnvProbeURL  = "E2E_PROBE_URL"
)

// Default configuration values.
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultProbeURL  = "http://localhost:9090"
	DefaultTimeout   = 15 * time.Second
	testOrigin       = "http://e2e.frontend.test"
)

// getEnvOrDefault returns the value of the environment variable
// identified by key, or defaultVal if the variable is not set.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// e2eServerURL returns the base URL of the API server under test.
func e2eServerURL() string {
	return getEnvOrDefault(EnvServerURL, DefaultServerURL)
}

// e2eProbeURL returns the base URL serving health, readiness and metrics.
// Set it to the API URL when the server runs with APP_PROBE_PORT=0.
func e2eProbeURL() string {
	return getEnvOrDefault(EnvProbeURL, DefaultProbeURL)
}

// skipIfServerUnavailable checks whether the server is reachable
// and skips the test if it is not.
func skipIfServerUnavailable(t *testing.T) {
	t.Helper()

	base := e2eServerURL()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/api/items")
	if err != nil {
		t.Skipf("Server unavailable at %s: %v", base, err)
	}
	resp.Body.Close()
}

// newHTTPClient returns an *http.Client with a sensible timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// item mirrors the item JSON representation.
type item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// errorResponse represents an error response from the API.
type errorResponse struct {
	Error string `json:"error"`
}

// doRequest performs an HTTP request and returns the response with its
// body already read.
func doRequest(
	t *testing.T,
	client *http.Client,
	method, url string,
	body string,
	headers map[string]string,
) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp, respBody
}

// createItem creates an item and returns it. It fails the test on error.
func createItem(t *testing.T, client *http.Client, base, name, description string) item {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"name":        name,
		"description": description,
	})
	resp, body := doRequest(t, client, http.MethodPost, base+"/api/items", string(payload), nil)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("createItem: expected 201, got %d. Body: %s", resp.StatusCode, body)
	}

	var created item
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("createItem: failed to parse item: %v", err)
	}

	return created
}

// deleteItem deletes an item by ID, logging unexpected statuses.
func deleteItem(t *testing.T, client *http.Client, base string, id int) {
	t.Helper()

	url := fmt.Sprintf("%s/api/items/%d", base, id)
	resp, body := doRequest(t, client, http.MethodDelete, url, "", nil)

	if resp.StatusCode != http.StatusOK {
		t.Logf("deleteItem cleanup: expected 200, got %d. Body: %s", resp.StatusCode, body)
	}
}
