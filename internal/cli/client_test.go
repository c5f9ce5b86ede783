package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"greenledger/internal/game"
)

func TestClientDecodesDetailErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"team is locked for this round"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).BuySupplier(t.Context(), "T1", game.CatalogItem{Name: "Tier A (Ethical)", Cost: 1200, DebtEffect: -1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Detail != "team is locked for this round" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClientSendsRequestFields(t *testing.T) {
	var got map[string]any
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":"LOBBY-1","team_code":"T1","item_name":"Scrubber","price":700}`))
	}))
	defer ts.Close()

	rc, err := NewClient(ts.URL+"/").CreateCode(t.Context(), game.IssueCodeInput{Code: "lobby-1", TeamCode: "T1", ItemName: "Scrubber", Price: 700})
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if gotPath != "/admin/create-code" || got["team_id"] != "T1" || got["price"] != float64(700) {
		t.Fatalf("unexpected request: path=%s body=%v", gotPath, got)
	}
	if rc.Code != "LOBBY-1" {
		t.Fatalf("unexpected response: %+v", rc)
	}
}

func TestLogsQueryString(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	if _, err := NewClient(ts.URL).Logs(t.Context(), LogQuery{TeamCode: "T1", Round: 3}); err != nil {
		t.Fatalf("logs: %v", err)
	}
	if gotQuery != "round=3&team_code=T1" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("GLCTL_HOME", t.TempDir())

	if _, err := LoadSession(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := SaveSession(Session{TeamCode: " T1 ", Username: "alpha"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.TeamCode != "T1" || s.Username != "alpha" {
		t.Fatalf("unexpected session: %+v", s)
	}
	for range 2 {
		if err := ClearSession(); err != nil {
			t.Fatalf("clear: %v", err)
		}
	}
	if _, err := LoadSession(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn after clear, got %v", err)
	}
}

func TestSaveSessionRequiresTeam(t *testing.T) {
	t.Setenv("GLCTL_HOME", t.TempDir())
	if err := SaveSession(Session{Username: "alpha"}); err == nil {
		t.Fatalf("expected error for empty team code")
	}
}
