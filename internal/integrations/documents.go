package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type documentStateRequest struct {
	State string `json:"state"`
	Actor string `json:"actor"`
	Type  string `json:"type,omitempty"`
}

// HTTPDocumentService pushes document state changes to the document
// management system. With no base URL configured the change is only logged.
type HTTPDocumentService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDocumentService(baseURL string, client *http.Client) *HTTPDocumentService {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTTPDocumentService{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// NewDocumentServiceFromConfig reads GFLOW_INTEGRATION_DMS_URL.
func NewDocumentServiceFromConfig() *HTTPDocumentService {
	return NewHTTPDocumentService(config.GetSystemSettingString(config.INTEGRATION_DMS_URL), nil)
}

func (s *HTTPDocumentService) UpdateDocumentState(ctx context.Context, ref domain.DocumentRef, state, actor string) error {
	if s.baseURL == "" {
		slog.InfoContext(ctx, "Document state change (no DMS configured)", "documentId", ref.ID, "state", state, "actor", actor)
		return nil
	}
	body, err := json.Marshal(documentStateRequest{State: state, Actor: actor, Type: ref.Type})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/documents/%s/state", s.baseURL, url.PathEscape(ref.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(s.client, req)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: config.GetSystemSettingDuration(config.INTEGRATION_HTTP_TIMEOUT, 10*time.Second)}
}

// do sends req and treats any non 2xx answer as an error carrying the start of the body.
func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Redacted(), resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
