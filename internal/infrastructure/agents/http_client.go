package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/resilience"
)

// HTTPAgent talks to one external stage service over its uniform
// request/response contract. Timeouts and retries are imposed by the
// caller, not here.
type HTTPAgent struct {
	name     string
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.StageAgent = (*HTTPAgent)(nil)

// NewHTTPAgent creates a reusable agent client.
func NewHTTPAgent(name, endpoint, apiKey string) *HTTPAgent {
	return &HTTPAgent{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the agent in stage records and breaker keys.
func (a *HTTPAgent) Name() string {
	return a.name
}

// Execute posts the accumulated payload and decodes the agent verdict.
func (a *HTTPAgent) Execute(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error) {
	if req.ContentID == "" {
		return domain.AgentResponse{}, resilience.NewValidationError("agent request without content id")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.AgentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AgentResponse{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return domain.AgentResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client-shaped errors never recover on retry.
		return domain.AgentResponse{}, resilience.NewValidationError(
			"agent %s rejected request: %s", a.name, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return domain.AgentResponse{}, fmt.Errorf("agent %s: unexpected status %s", a.name, resp.Status)
	}

	var agentResp domain.AgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
		return domain.AgentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return agentResp, nil
}

// Directory resolves stage agents from configured endpoints.
type Directory struct {
	agents map[domain.Stage]ports.StageAgent
}

var _ ports.AgentDirectory = (*Directory)(nil)

// NewDirectory builds an empty directory.
func NewDirectory() *Directory {
	return &Directory{agents: map[domain.Stage]ports.StageAgent{}}
}

// Register adds or replaces the agent for a stage.
func (d *Directory) Register(stage domain.Stage, agent ports.StageAgent) {
	if d.agents == nil {
		d.agents = map[domain.Stage]ports.StageAgent{}
	}
	d.agents[stage] = agent
}

// Agent returns the agent for a stage or an error if it is absent.
func (d *Directory) Agent(stage domain.Stage) (ports.StageAgent, error) {
	if agent, ok := d.agents[stage]; ok {
		return agent, nil
	}
	return nil, fmt.Errorf("no agent registered for stage %s", stage)
}
