package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// Client is a thin typed wrapper over the Notion REST API.
type Client struct {
	BaseURL string

	token  string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(token string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type queryRequest struct {
	Filter any   `json:"filter,omitempty"`
	Sorts  []any `json:"sorts,omitempty"`
}

type queryResponse struct {
	Results []Page `json:"results"`
}

type textEqualsFilter struct {
	Property string `json:"property"`
	RichText struct {
		Equals string `json:"equals"`
	} `json:"rich_text"`
}

type editedAfterFilter struct {
	Timestamp      string `json:"timestamp"`
	LastEditedTime struct {
		After string `json:"after"`
	} `json:"last_edited_time"`
}

type timestampSort struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("notion: encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return fmt.Errorf("notion: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notion: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("notion: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) queryDatabase(ctx context.Context, databaseID string, filter any, sorts []any) ([]Page, error) {
	var resp queryResponse
	err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", queryRequest{Filter: filter, Sorts: sorts}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CreatePage creates a page in the given database and returns it.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props Properties) (Page, error) {
	body := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": props,
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return Page{}, err
	}
	c.logger.Info("created notion page", zap.String("page_id", page.ID))
	return page, nil
}

// UpdatePage patches the given properties on an existing page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props Properties) error {
	body := map[string]any{"properties": props}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil); err != nil {
		return err
	}
	c.logger.Info("updated notion page", zap.String("page_id", pageID))
	return nil
}

func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	var page Page
	err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil, &page)
	return page, err
}

// FindPageByTaskID looks up the page whose correlation property equals the
// given DingTalk task id. Returns nil when no page matches.
func (c *Client) FindPageByTaskID(ctx context.Context, databaseID, correlationProp, taskID string) (*Page, error) {
	f := textEqualsFilter{Property: correlationProp}
	f.RichText.Equals = taskID

	pages, err := c.queryDatabase(ctx, databaseID, f, nil)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}

// RecentlyEdited returns pages edited after since, newest first.
func (c *Client) RecentlyEdited(ctx context.Context, databaseID string, since time.Time) ([]Page, error) {
	f := editedAfterFilter{Timestamp: "last_edited_time"}
	f.LastEditedTime.After = since.UTC().Format(time.RFC3339Nano)

	sorts := []any{timestampSort{Timestamp: "last_edited_time", Direction: "descending"}}
	return c.queryDatabase(ctx, databaseID, f, sorts)
}
