package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"opsplane/pkg/api"
)

// JobClient handles API calls to the opsplane worker.
type JobClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewJobClient creates a new client with the given base URL and key.
func NewJobClient(baseURL, apiKey string) *JobClient {
	return &JobClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *JobClient) newRequest(method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Add("X-API-Key", c.APIKey)
	}
	req.Header.Add("Content-Type", "application/json")
	return req, nil
}

func (c *JobClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// Submit sends POST /jobs.
func (c *JobClient) Submit(req api.SubmitJobRequest) (*api.SubmitJobResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := c.newRequest(http.MethodPost, "/jobs", body)
	if err != nil {
		return nil, err
	}

	var result api.SubmitJobResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get sends GET /jobs/{id}.
func (c *JobClient) Get(jobID string) (*api.JobResponse, error) {
	httpReq, err := c.newRequest(http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	var result api.JobResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List sends GET /jobs.
func (c *JobClient) List() ([]api.JobResponse, error) {
	httpReq, err := c.newRequest(http.MethodGet, "/jobs", nil)
	if err != nil {
		return nil, err
	}

	var result api.ListJobsResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// Stats sends GET /stats.
func (c *JobClient) Stats() (*api.StatsResponse, error) {
	httpReq, err := c.newRequest(http.MethodGet, "/stats", nil)
	if err != nil {
		return nil, err
	}

	var result api.StatsResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel sends DELETE /jobs/{id}.
func (c *JobClient) Cancel(jobID string) error {
	httpReq, err := c.newRequest(http.MethodDelete, "/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

// Watch streams GET /jobs/{id}/events, invoking fn per event until the
// stream ends or ctx is cancelled.
func (c *JobClient) Watch(ctx context.Context, jobID string, fn func(api.EventMessage)) error {
	httpReq, err := c.newRequest(http.MethodGet, "/jobs/"+jobID+"/events", nil)
	if err != nil {
		return err
	}
	httpReq = httpReq.WithContext(ctx)

	// The stream lives as long as the job; no client timeout.
	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var msg api.EventMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		fn(msg)
	}
	return scanner.Err()
}
