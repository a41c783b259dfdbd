// Package sheets replicates collections to a spreadsheet backend exposed as an
// HTTP webhook (for example an Apps Script deployment bound to a sheet).
// Each call posts {"mode": ..., "rows": [...]} to <baseURL>/<entity>.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vendinha/internal/replication"
)

var ErrMissingURL = errors.New("sheets webhook url is required")

type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sheets webhook error: %s", e.Status)
	}
	return fmt.Sprintf("sheets webhook error: %s: %s", e.Status, e.Body)
}

type Remote struct {
	http *resty.Client
}

type pushRequest struct {
	Mode replication.Mode  `json:"mode"`
	Rows []json.RawMessage `json:"rows"`
}

func New(baseURL string, token string, timeout time.Duration) (*Remote, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if token != "" {
		client.SetAuthScheme("Bearer")
		client.SetAuthToken(token)
	}
	return &Remote{http: client}, nil
}

func (r *Remote) Append(ctx context.Context, entity replication.Entity, rows []json.RawMessage) error {
	return r.post(ctx, entity, replication.ModeAppend, rows)
}

func (r *Remote) Overwrite(ctx context.Context, entity replication.Entity, rows []json.RawMessage) error {
	return r.post(ctx, entity, replication.ModeOverwrite, rows)
}

func (r *Remote) post(ctx context.Context, entity replication.Entity, mode replication.Mode, rows []json.RawMessage) error {
	if rows == nil {
		rows = []json.RawMessage{}
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(pushRequest{Mode: mode, Rows: rows}).
		Post("/" + string(entity))
	if err != nil {
		return fmt.Errorf("sheets %s %s: %w", mode, entity, err)
	}
	if resp.IsError() {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       strings.TrimSpace(resp.String()),
		}
	}
	return nil
}
