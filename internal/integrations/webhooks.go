package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// HTTPWebhookClient sends instance snapshots to the URLs configured on webhook actions.
type HTTPWebhookClient struct {
	client *http.Client
}

func NewHTTPWebhookClient(client *http.Client) *HTTPWebhookClient {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTTPWebhookClient{client: client}
}

func (c *HTTPWebhookClient) Send(ctx context.Context, hook domain.WebhookAction, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "govflow-webhook")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}
	return do(c.client, req)
}
