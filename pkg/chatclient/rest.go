package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/inspirecraft/realtime/internal/models"
)

// RESTClient implements API against the service's REST surface. Reads retry
// transient failures with exponential backoff; writes go out exactly once,
// since retrying a send whose ack was lost would persist the message twice.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
	maxWait time.Duration
}

func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		maxWait: 30 * time.Second,
	}
}

func (c *RESTClient) History(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var out struct {
		Data []*models.Message `json:"data"`
	}
	url := fmt.Sprintf("%s/api/v1/messages?conversationId=%s", c.baseURL, conversationID)
	if err := c.do(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *RESTClient) Send(ctx context.Context, conversationID, kind, content string) (*models.Message, error) {
	body := map[string]string{
		"conversation_id": conversationID,
		"type":            kind,
		"content":         content,
	}
	var out struct {
		Data *models.Message `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/messages", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *RESTClient) do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("server error: %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("request failed: %s: %s", resp.Status, bytes.TrimSpace(b)))
		}
		if out != nil {
			return json.NewDecoder(resp.Body).Decode(out)
		}
		return nil
	}

	if method != http.MethodGet {
		if err := operation(); err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return perm.Err
			}
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxWait
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
