package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"quicklaunch/internal/configstore"
	"quicklaunch/internal/diagnostics"
	"quicklaunch/internal/portbroker"
	"quicklaunch/internal/scheduler"
	"quicklaunch/internal/supervisor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store := configstore.New(dir)
	ports := portbroker.New(store, nil)
	table := supervisor.NewTable()
	health := supervisor.NewHealthProber()
	diag := diagnostics.New(dir)
	lifecycle := supervisor.NewLifecycleManager(table, ports, diag, health)
	installer := supervisor.NewInstaller()
	sched := scheduler.New(lifecycle, store)
	return New(store, ports, lifecycle, installer, sched, diag)
}

func TestHandleListApps_EmptyByDefault(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/apps", nil)
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body struct {
		Apps []any `json:"apps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Apps) != 0 {
		t.Fatalf("expected no apps, got %v", body.Apps)
	}
}

func TestHandleAddApp_ThenListIncludesIt(t *testing.T) {
	s := newTestServer(t)

	payload := `{"id":"web","name":"Web","command":["node","server.js"],"path":"."}`
	req := httptest.NewRequest(http.MethodPost, "/api/apps", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/apps", nil)
	rr = httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	var body struct {
		Apps []struct {
			ID string `json:"id"`
		} `json:"apps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Apps) != 1 || body.Apps[0].ID != "web" {
		t.Fatalf("expected one app 'web', got %+v", body.Apps)
	}
}

func TestHandleAddApp_RejectsDuplicateID(t *testing.T) {
	s := newTestServer(t)

	payload := `{"id":"web","name":"Web","command":["node","server.js"],"path":"."}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/apps", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		s.Engine().ServeHTTP(rr, req)
		if i == 0 && rr.Code != http.StatusOK {
			t.Fatalf("expected first add to succeed, got %d: %s", rr.Code, rr.Body.String())
		}
		if i == 1 && rr.Code != http.StatusBadRequest {
			t.Fatalf("expected duplicate add to be rejected, got %d", rr.Code)
		}
	}
}

func TestHandleDeleteApp_NotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/apps/missing", nil)
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestHandlePortCheck_AvailablePort(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ports/check/59123", nil)
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var result struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Available {
		t.Fatal("expected an unused high port to be available")
	}
}

func TestHandleTodos_EmptyWithoutTodoFile(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 0 {
		t.Fatalf("expected count 0 without a TODO.md, got %d", body.Count)
	}
}
