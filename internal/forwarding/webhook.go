package forwarding

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"otprelay/internal/constants"
)

type WebhookPoster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) (int, error)
}

type WebhookClient struct {
	client *resty.Client
}

func NewWebhookClient() *WebhookClient {
	client := resty.New()
	client.SetTimeout(constants.DefaultHTTPTimeout)
	client.SetHeader("User-Agent", "otprelay")

	return &WebhookClient{client: client}
}

// PostJSON returns the HTTP status. Transport failures return an error and status 0.
func (c *WebhookClient) PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) (int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	return resp.StatusCode(), nil
}
