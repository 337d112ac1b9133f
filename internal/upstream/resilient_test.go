package upstream

import (
	"context"
	"errors"
	"testing"

	"github.com/healthorbit/thyrocare-bridge/internal/breaker"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"go.uber.org/zap"
)

// fakeCreds hands out numbered keys and counts refreshes.
type fakeCreds struct {
	getCalls     int
	refreshCalls int
	refreshErr   error
}

func (f *fakeCreds) GetOrRefreshAPIKey(ctx context.Context) (string, error) {
	f.getCalls++
	return "key-initial", nil
}

func (f *fakeCreds) ForceRefresh(ctx context.Context) (string, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return "key-refreshed", nil
}

// directEnqueuer runs operations inline, standing in for queue+breaker.
type directEnqueuer struct{}

func (directEnqueuer) Enqueue(ctx context.Context, op queue.Operation, opts queue.Options) (any, error) {
	return op()
}

func newTestClient(creds *fakeCreds) *ResilientClient {
	return NewResilientClient(creds, directEnqueuer{}, nil, zap.NewNop().Sugar())
}

func envelope(msg string) *LoginResponse {
	return &LoginResponse{apiResponse: apiResponse{Response: msg}}
}

func TestMakeRequest_Success(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	var keys []string
	payload, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			keys = append(keys, apiKey)
			return envelope("SUCCESS!"), nil
		})
	if err != nil {
		t.Fatalf("MakeRequest error: %v", err)
	}
	if payload.ResponseMessage() != "SUCCESS!" {
		t.Fatalf("unexpected payload: %v", payload.ResponseMessage())
	}
	if len(keys) != 1 || keys[0] != "key-initial" {
		t.Fatalf("unexpected key usage: %v", keys)
	}
	if creds.refreshCalls != 0 {
		t.Fatalf("unexpected refresh calls: %d", creds.refreshCalls)
	}
}

func TestMakeRequest_DisguisedAuthFailureRetriesOnce(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	var keys []string
	payload, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			keys = append(keys, apiKey)
			if len(keys) == 1 {
				return envelope("Invalid Api Key"), nil
			}
			return envelope("SUCCESS!"), nil
		})
	if err != nil {
		t.Fatalf("MakeRequest error: %v", err)
	}
	if payload.ResponseMessage() != "SUCCESS!" {
		t.Fatalf("unexpected payload: %v", payload.ResponseMessage())
	}
	if creds.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", creds.refreshCalls)
	}
	if len(keys) != 2 || keys[1] != "key-refreshed" {
		t.Fatalf("expected retry with refreshed key, got %v", keys)
	}
}

func TestMakeRequest_TwoAuthFailuresRejects(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	attempts := 0
	_, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			attempts++
			return envelope("Invalid Api Key"), nil
		})
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly two attempts, got %d", attempts)
	}
	if creds.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", creds.refreshCalls)
	}
}

func TestMakeRequest_Unauthorized401Retries(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	attempts := 0
	payload, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			attempts++
			if attempts == 1 {
				return nil, &StatusError{StatusCode: 401, Body: "unauthorized"}
			}
			return envelope("SUCCESS!"), nil
		})
	if err != nil {
		t.Fatalf("MakeRequest error: %v", err)
	}
	if payload == nil || attempts != 2 || creds.refreshCalls != 1 {
		t.Fatalf("expected one refresh + retry, attempts=%d refreshes=%d", attempts, creds.refreshCalls)
	}
}

func TestMakeRequest_CircuitOpenNotRetried(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	attempts := 0
	_, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			attempts++
			return nil, breaker.ErrCircuitOpen
		})
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if attempts != 1 || creds.refreshCalls != 0 {
		t.Fatalf("circuit-open must not trigger refresh: attempts=%d refreshes=%d", attempts, creds.refreshCalls)
	}
}

func TestMakeRequest_NetworkErrorNotRetried(t *testing.T) {
	creds := &fakeCreds{}
	c := newTestClient(creds)

	errNet := errors.New("connection reset by peer")
	attempts := 0
	_, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			attempts++
			return nil, errNet
		})
	if !errors.Is(err, errNet) {
		t.Fatalf("expected network error, got %v", err)
	}
	if attempts != 1 || creds.refreshCalls != 0 {
		t.Fatalf("network error must not trigger refresh: attempts=%d refreshes=%d", attempts, creds.refreshCalls)
	}
}

func TestMakeRequest_RefreshFailureSurfaces(t *testing.T) {
	creds := &fakeCreds{refreshErr: errors.New("login blocked")}
	c := newTestClient(creds)

	attempts := 0
	_, err := c.MakeRequest(context.Background(), queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (Payload, error) {
			attempts++
			return envelope("Invalid Api Key"), nil
		})
	if err == nil || attempts != 1 {
		t.Fatalf("expected refresh failure to surface after one attempt, attempts=%d err=%v", attempts, err)
	}
}
