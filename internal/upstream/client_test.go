package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newServerClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:  srv.URL,
		Username: "dsa-user",
		Password: "secret",
	}, zap.NewNop().Sugar())
}

func TestLogin_Success(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login request: %v", err)
		}
		if req.Username != "dsa-user" || req.Password != "secret" {
			t.Errorf("credentials not forwarded: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"response":    "SUCCESS!",
			"apiKey":      "fresh-key",
			"accessToken": "fresh-token",
			"respId":      "9876",
		})
	})

	resp, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if resp.APIKey != "fresh-key" || resp.AccessToken != "fresh-token" || resp.RespID != "9876" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
}

func TestLogin_Blocked(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		// abuse protection answers inside a 200 envelope
		json.NewEncoder(w).Encode(map[string]string{
			"response": "Login has been blocked, try after some time",
		})
	})

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrLoginBlocked) {
		t.Fatalf("expected ErrLoginBlocked, got %v", err)
	}
}

func TestPostJSON_Non2xxBecomesStatusError(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := c.OrderSummary(context.Background(), "key", "TBS-1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", se.StatusCode)
	}
}

func TestOrderSummary_DecodesLeads(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"response": "SUCCESS!",
			"orderNo":  "TBS-42",
			"status":   "DONE",
			"leadDetails": []map[string]string{
				{"name": "Asha Rao", "leadId": "L-1", "status": "DONE", "reportUrl": "https://reports/l1.pdf"},
			},
		})
	})

	resp, err := c.OrderSummary(context.Background(), "key", "TBS-42")
	if err != nil {
		t.Fatalf("OrderSummary error: %v", err)
	}
	if resp.Status != "DONE" || len(resp.Leads) != 1 || resp.Leads[0].ReportURL == "" {
		t.Fatalf("unexpected summary: %+v", resp)
	}
}

func TestAuthErrorDetector(t *testing.T) {
	d := NewAuthErrorDetector()

	if !d.IsAuthPayload(envelope("Invalid Api Key")) {
		t.Fatal("expected disguised failure to be detected")
	}
	if !d.IsAuthPayload(envelope("INVALID CREDENTIALS")) {
		t.Fatal("expected case-insensitive detection")
	}
	if d.IsAuthPayload(envelope("SUCCESS!")) {
		t.Fatal("success envelope misclassified")
	}
	if !d.IsAuthError(&StatusError{StatusCode: 401, Body: "nope"}) {
		t.Fatal("401 should be an auth signal")
	}
	if d.IsAuthError(&StatusError{StatusCode: 500, Body: "server melted"}) {
		t.Fatal("500 misclassified as auth signal")
	}
	if d.IsAuthError(errors.New("connection refused")) {
		t.Fatal("network error misclassified as auth signal")
	}

	custom := NewAuthErrorDetector("invalid", "expired token")
	if !custom.IsAuthPayload(envelope("Expired Token, login again")) {
		t.Fatal("custom marker not honored")
	}
}
