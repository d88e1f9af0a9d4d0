package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.dingtalk.com"

// Client wraps the DingTalk todo API for a single user (union id). The access
// token is cached and refreshed 5 minutes before its reported expiry; the
// cache is mutex-guarded because pollers and the webhook handler share one
// client.
type Client struct {
	BaseURL string

	appKey    string
	appSecret string
	unionID   string
	http      *http.Client
	logger    *zap.Logger

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

func NewClient(appKey, appSecret, unionID string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:   defaultBaseURL,
		appKey:    appKey,
		appSecret: appSecret,
		unionID:   unionID,
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
}

// UnionID returns the union id of the user this client acts as.
func (c *Client) UnionID() string { return c.unionID }

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpireIn    int64  `json:"expireIn"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"appKey":    c.appKey,
		"appSecret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1.0/oauth2/accessToken", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dingtalk: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("dingtalk: fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("dingtalk: fetch access token: status %d: %s", resp.StatusCode, msg)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("dingtalk: decode token response: %w", err)
	}

	c.token = tr.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(tr.ExpireIn)*time.Second - 5*time.Minute)
	c.logger.Info("refreshed dingtalk access token")
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dingtalk: encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return fmt.Errorf("dingtalk: build request: %w", err)
	}
	req.Header.Set("x-acs-dingtalk-access-token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dingtalk: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dingtalk: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("dingtalk: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) tasksPath() string {
	return "/v1.0/todo/users/" + c.unionID + "/tasks"
}

// CreateTask creates a todo task and returns its id.
func (c *Client) CreateTask(ctx context.Context, f CreateFields) (string, error) {
	var rec TaskRecord
	if err := c.do(ctx, http.MethodPost, c.tasksPath(), f, &rec); err != nil {
		return "", err
	}
	c.logger.Info("created dingtalk task", zap.String("task_id", rec.TaskID), zap.String("subject", f.Subject))
	return rec.TaskID, nil
}

// UpdateTask applies a partial update to an existing todo task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, f UpdateFields) error {
	if err := c.do(ctx, http.MethodPut, c.tasksPath()+"/"+taskID, f, nil); err != nil {
		return err
	}
	c.logger.Info("updated dingtalk task", zap.String("task_id", taskID))
	return nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, c.tasksPath()+"/"+taskID, nil, nil)
}

func (c *Client) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	var rec TaskRecord
	err := c.do(ctx, http.MethodGet, c.tasksPath()+"/"+taskID, nil, &rec)
	return rec, err
}

type queryRequest struct {
	NextToken string `json:"nextToken,omitempty"`
}

type queryResponse struct {
	Tasks     []TaskRecord `json:"tasks"`
	NextToken string       `json:"nextToken"`
}

// QueryTasks lists the user's org todo tasks modified after since. The API
// pages by opaque token and has no server-side time filter, so pages are
// walked and filtered here.
func (c *Client) QueryTasks(ctx context.Context, since time.Time) ([]TaskRecord, error) {
	sinceMs := since.UnixMilli()
	var out []TaskRecord

	next := ""
	for {
		var resp queryResponse
		err := c.do(ctx, http.MethodPost, "/v1.0/todo/users/"+c.unionID+"/org/tasks/query", queryRequest{NextToken: next}, &resp)
		if err != nil {
			return nil, err
		}
		for _, rec := range resp.Tasks {
			if rec.ModifiedTime > sinceMs {
				out = append(out, rec)
			}
		}
		if resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out, nil
}
