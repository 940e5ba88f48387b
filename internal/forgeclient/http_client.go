// Package forgeclient implements the Hybrid Forge Client: a compound-query
// path with automatic fallback to a five-call fine-grained path, both
// accounted against a single cost budget (spec §4.2). Grounded on the
// teacher's hand-rolled HTTP client for OpenRouter/Groq
// (internal/adapter/ai/rate_limit_checker.go) since no forge SDK exists
// anywhere in the retrieved example pack.
package forgeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// httpDoer is the narrow surface both call paths need from *http.Client,
// declared consumer-side to keep tests free of real network calls.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newTracedClient wraps a transport with otelhttp so every forge call is a
// traced span, matching the ambient tracing carried throughout this repo.
func newTracedClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// doJSON issues an HTTP request and decodes a JSON response body into out.
// A 404 status maps to domain.ErrNotFound; any other non-2xx status or
// transport failure maps to domain.ErrTransport.
func doJSON(ctx context.Context, client httpDoer, req *http.Request, out interface{}) error {
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("op=forgeclient.doJSON: %w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("op=forgeclient.doJSON: %w: unexpected status %d", domain.ErrTransport, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("op=forgeclient.doJSON decode: %w: %v", domain.ErrTransport, err)
	}
	return nil
}
