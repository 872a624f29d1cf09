package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
)

// invokePath is the workload agent's single RPC endpoint.
const invokePath = "/v1/invoke"

// HTTPAgent invokes procedures on benchgrid workload agents over HTTP.
// One shared client serves all invocations to reuse TCP connections.
type HTTPAgent struct {
	client *http.Client
	creds  CredentialSource
}

// AgentOption configures an HTTPAgent.
type AgentOption func(*HTTPAgent)

// WithHTTPClient replaces the default client (mainly for tests).
func WithHTTPClient(c *http.Client) AgentOption {
	return func(a *HTTPAgent) {
		a.client = c
	}
}

// WithCredentials attaches a credential source; when set, every request
// carries the "agent" credential as a bearer token.
func WithCredentials(cs CredentialSource) AgentOption {
	return func(a *HTTPAgent) {
		a.creds = cs
	}
}

// NewHTTPAgent creates an HTTPAgent with a 30s request timeout.
func NewHTTPAgent(opts ...AgentOption) *HTTPAgent {
	a := &HTTPAgent{
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// invokeRequest is the wire shape of one procedure call.
type invokeRequest struct {
	Procedure string            `json:"procedure"`
	Args      map[string]string `json:"args,omitempty"`
}

// invokeResponse is the wire shape of the agent's reply.
type invokeResponse struct {
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Invoke implements Invoker. target is a "host:port" agent address. A
// transport-level failure maps to ErrTargetUnreachable; an agent-reported
// failure surfaces as a plain error.
func (a *HTTPAgent) Invoke(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)

	body, err := json.Marshal(invokeRequest{Procedure: procedure, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	url := "http://" + target + invokePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if a.creds != nil {
		token, err := a.creds.GetCredential(ctx, "agent")
		if err != nil {
			return nil, fmt.Errorf("resolve agent credential: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug("Invoking agent procedure.", "target", target, "procedure", procedure)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTargetUnreachable, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read agent response from %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent %s returned %s for %s: %s", target, resp.Status, procedure, data)
	}

	var decoded invokeResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode agent response from %s: %w", target, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("procedure %s failed on %s: %s", procedure, target, decoded.Error)
	}
	return decoded.Result, nil
}
