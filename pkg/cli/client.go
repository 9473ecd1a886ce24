package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/ruckstats/pkg/httputil"
)

// DefaultServer is the API address the query commands talk to
const DefaultServer = "http://localhost:8080"

// apiClient reads the JSON API served by "ruckstats serve"
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// serverFlags registers the flags shared by every query command
func serverFlags(fs *flag.FlagSet) (server *string, timeout *time.Duration, asJSON *bool) {
	server = fs.String("server", DefaultServer, "ruckstats API URL")
	timeout = fs.Duration("timeout", 30*time.Second, "request timeout")
	asJSON = fs.Bool("json", false, "print the raw JSON response")
	return server, timeout, asJSON
}

// get fetches path and decodes the body into dest. Error replies are
// returned as errors carrying the server's message.
func (c *apiClient) get(ctx context.Context, path string, query url.Values, dest any) error {
	return c.do(ctx, http.MethodGet, path, query, dest)
}

func (c *apiClient) post(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodPost, path, nil, dest)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, dest any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr httputil.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s %s: %s: %w", method, path, resp.Status, errors.New(apiErr.Error))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
