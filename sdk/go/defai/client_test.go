package defai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatTracksSession(t *testing.T) {
	var gotAuth string
	var gotRequest ChatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{SessionID: "sess-42", Response: "hello"})
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL, WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Chat(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Response != "hello" {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if client.SessionID() != "sess-42" {
		t.Fatalf("session id not tracked: %q", client.SessionID())
	}

	if _, err := client.Chat(context.Background(), "again", ""); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if gotRequest.SessionID != "sess-42" {
		t.Fatalf("second request must reuse session id, got %q", gotRequest.SessionID)
	}
}

func TestHistoryRequiresSession(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	records, err := client.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("history without session must not fail: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records, got %+v", records)
	}
}

func TestHistoryPassesQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/history" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "sess-1" {
			t.Fatalf("unexpected session_id: %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]HistoryRecord{{SessionID: "sess-1", Message: "hi"}})
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetSessionID("sess-1")

	records, err := client.History(context.Background(), 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 || records[0].Message != "hi" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestBalanceOf(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got == "" {
			t.Fatalf("missing address query")
		}
		_ = json.NewEncoder(w).Encode(Balance{Address: "0xabc", Balance: "1.5"})
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	balance, err := client.BalanceOf(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != "1.5" {
		t.Fatalf("unexpected balance: %q", balance.Balance)
	}
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "message 不能为空", http.StatusBadRequest)
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Chat(context.Background(), "", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Message != "message 不能为空" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}
