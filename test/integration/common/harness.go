// Package common holds the end-to-end scenarios every database backend runs.
package common

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RealZimboGuy/govflow/internal/controllers"
	"github.com/RealZimboGuy/govflow/internal/repository"
	"github.com/RealZimboGuy/govflow/pkg/govflow"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/RealZimboGuy/govflow/test/integration"
	"github.com/stretchr/testify/require"
)

// Harness drives a wired server through its HTTP API with a fake clock.
type Harness struct {
	T      *testing.T
	Server *govflow.Server
	Clock  *integration.FakeClock
	URL    string
	keys   map[string]string
}

func NewHarness(t *testing.T, db *sql.DB, dialect repository.Dialect) *Harness {
	t.Helper()
	clock := integration.NewFakeClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	srv := govflow.New(db, dialect, clock)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &Harness{T: t, Server: srv, Clock: clock, URL: ts.URL, keys: map[string]string{}}
}

// AddUser stores an enabled user and remembers its api key for Do.
func (h *Harness) AddUser(name string, level domain.AccessLevel, roles []string, committees []string) {
	h.T.Helper()
	u, err := controllers.NewUser(name, "pw-"+name, level, roles, committees)
	require.NoError(h.T, err)
	_, err = h.Server.Users.Save(context.Background(), u)
	require.NoError(h.T, err)
	h.keys[name] = u.ApiKey.String
}

// Do sends body as JSON on behalf of user and decodes a 2xx response into out.
func (h *Harness) Do(user, method, path string, body any, out any) int {
	h.T.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.T, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.URL+path, reader)
	require.NoError(h.T, err)
	req.Header.Set("Content-Type", "application/json")
	if key, ok := h.keys[user]; ok {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.T, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(h.T, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// CreateDefinition publishes def as user and requires success.
func (h *Harness) CreateDefinition(user string, def map[string]any) domain.WorkflowDefinition {
	h.T.Helper()
	var created domain.WorkflowDefinition
	require.Equal(h.T, http.StatusCreated, h.Do(user, "POST", "/api/definitions", def, &created))
	return created
}
