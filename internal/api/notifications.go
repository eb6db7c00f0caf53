package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nhle/ideaboard/internal/model"
)

// readAllRequest is the body of POST /notifications/read-all.
type readAllRequest struct {
	IDs []string `json:"ids"`
}

// readAllResponse is the reply to POST /notifications/read-all.
type readAllResponse struct {
	Results []model.BatchResult `json:"results"`
}

func notificationPath(id string) string {
	return "/notifications/" + url.PathEscape(id)
}

// ListNotifications fetches one page of notifications changed after cursor.
// An empty or "0" cursor lists everything.
func (c *Client) ListNotifications(ctx context.Context, cursor string, limit int) (*model.Page, error) {
	q := url.Values{}
	if cursor == "" {
		cursor = "0"
	}
	q.Set("cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page model.Page
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &page); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return &page, nil
}

// GetNotification fetches a single notification.
func (c *Client) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := c.do(ctx, http.MethodGet, notificationPath(id), nil, &n); err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return &n, nil
}

// MarkRead marks one notification read and returns the updated record.
func (c *Client) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := c.do(ctx, http.MethodPost, notificationPath(id)+"/read", nil, &n); err != nil {
		return nil, fmt.Errorf("marking %s read: %w", id, err)
	}
	if n.ID == "" {
		return nil, nil
	}
	return &n, nil
}

// MarkAllRead marks the given notifications read and returns a result per id.
func (c *Client) MarkAllRead(ctx context.Context, ids []string) ([]model.BatchResult, error) {
	var resp readAllResponse
	if err := c.do(ctx, http.MethodPost, "/notifications/read-all", readAllRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("marking %d notifications read: %w", len(ids), err)
	}
	return resp.Results, nil
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, notificationPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}

// Clear removes every notification of the current user.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/notifications", nil, nil); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}
