package netlify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Client triggers site builds through a build hook and polls deploy
// state through the Netlify API.
type Client struct {
	buildHookURL string
	apiBase      string
	siteID       string
	token        string
	http         *http.Client
}

var _ ports.BuildService = (*Client)(nil)

// NewClient creates a reusable build-service client.
func NewClient(buildHookURL, apiBase, siteID, token string) *Client {
	return &Client{
		buildHookURL: buildHookURL,
		apiBase:      apiBase,
		siteID:       siteID,
		token:        token,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

// TriggerBuild fires the build hook and returns the deploy id of the
// run it started.
func (c *Client) TriggerBuild(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildHookURL, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger build: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("build hook: unexpected status %s", resp.Status)
	}

	// The hook itself returns no deploy id; the freshest deploy for
	// the site is the one it started.
	deploy, err := c.latestDeploy(ctx)
	if err != nil {
		return "", err
	}
	return deploy.ID, nil
}

// BuildStatus maps the deploy state onto the pipeline's build states.
func (c *Client) BuildStatus(ctx context.Context, buildRef string) (domain.BuildState, error) {
	var deploy deployInfo
	url := fmt.Sprintf("%s/deploys/%s", c.apiBase, buildRef)
	if err := c.get(ctx, url, &deploy); err != nil {
		return "", err
	}

	switch deploy.State {
	case "ready":
		return domain.BuildReady, nil
	case "error":
		return domain.BuildFailed, nil
	default:
		return domain.BuildRunning, nil
	}
}

type deployInfo struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (c *Client) latestDeploy(ctx context.Context) (deployInfo, error) {
	var deploys []deployInfo
	url := fmt.Sprintf("%s/sites/%s/deploys?per_page=1", c.apiBase, c.siteID)
	if err := c.get(ctx, url, &deploys); err != nil {
		return deployInfo{}, err
	}
	if len(deploys) == 0 {
		return deployInfo{}, fmt.Errorf("no deploys found for site %s", c.siteID)
	}
	return deploys[0], nil
}

func (c *Client) get(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
