package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/faultmesh/faultline/internal/models"
	"github.com/faultmesh/faultline/internal/utils"
)

// AgentClient fetches system snapshots from a remote faultline node agent
// over HTTP. It implements the snapshot provider contract used by the
// orchestrator and the monitor.
type AgentClient struct {
	baseURL      string
	snapshotPath string
	httpClient   *http.Client
}

// NewAgentClient constructs a client targeting the configured agent.
func NewAgentClient(baseURL, snapshotPath string, timeout time.Duration) *AgentClient {
	if snapshotPath == "" {
		snapshotPath = "/api/v1/system/snapshot"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AgentClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Snapshot queries the agent for its current metrics reading.
func (c *AgentClient) Snapshot(ctx context.Context) (models.Snapshot, error) {
	if c == nil || c.baseURL == "" {
		return models.Snapshot{}, fmt.Errorf("agent base URL not configured")
	}

	endpoint, err := c.snapshotURL()
	if err != nil {
		return models.Snapshot{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Snapshot{}, utils.NewAppError("agent.Snapshot", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Snapshot{}, utils.NewAppError("agent.Snapshot",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var payload struct {
		CPUUsage    float64   `json:"cpu_usage"`
		MemoryUsage float64   `json:"memory_usage"`
		DiskUsage   float64   `json:"disk_usage"`
		Timestamp   time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Snapshot{}, utils.NewAppError("agent.Snapshot", "decode response", err)
	}

	snap := models.Snapshot{
		CPUUsage:    payload.CPUUsage,
		MemoryUsage: payload.MemoryUsage,
		DiskUsage:   payload.DiskUsage,
		Timestamp:   payload.Timestamp,
	}
	if snap.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return snap, nil
}

func (c *AgentClient) snapshotURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse agent base URL: %w", err)
	}
	parsed.Path = path.Join(parsed.Path, c.snapshotPath)
	return parsed.String(), nil
}
