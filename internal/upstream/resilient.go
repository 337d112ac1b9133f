package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/healthorbit/thyrocare-bridge/internal/breaker"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"go.uber.org/zap"
)

// APICall is one upstream operation parameterized by the API key in use.
type APICall func(ctx context.Context, apiKey string) (Payload, error)

// CredentialSource hands out a usable API key and can force a new one.
// Implemented by credentials.Manager.
type CredentialSource interface {
	GetOrRefreshAPIKey(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Enqueuer schedules an operation on the shared request queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, op queue.Operation, opts queue.Options) (any, error)
}

// ResilientClient is the facade every feature talks through: it obtains a
// credential, dispatches the call through the queue and breaker, detects
// auth failures disguised as HTTP 200 successes, and retries exactly once
// after forcing a credential refresh.
type ResilientClient struct {
	creds    CredentialSource
	q        Enqueuer
	detector *AuthErrorDetector
	logger   *zap.SugaredLogger
}

// NewResilientClient wires the facade. detector may be nil, which installs
// the default marker set.
func NewResilientClient(creds CredentialSource, q Enqueuer, detector *AuthErrorDetector, logger *zap.SugaredLogger) *ResilientClient {
	if detector == nil {
		detector = NewAuthErrorDetector()
	}
	return &ResilientClient{creds: creds, q: q, detector: detector, logger: logger}
}

// callOutcome classifies one attempt so the retry bound stays structural:
// attempt -> classify -> (done | refresh and retry once) -> done.
type callOutcome int

const (
	outcomeOK callOutcome = iota
	outcomeAuthFailure
	outcomeHardFailure
)

// MakeRequest executes call with a valid API key. On an auth failure (401,
// error text carrying an auth marker, or a disguised failure inside a 200
// body) it refreshes the credential and retries exactly once; a second auth
// failure surfaces as ErrAuthRejected. Non-auth failures (circuit open,
// queue saturated, timeouts) are returned unchanged and never retried here.
func (c *ResilientClient) MakeRequest(ctx context.Context, pri queue.Priority, call APICall) (Payload, error) {
	apiKey, err := c.creds.GetOrRefreshAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := c.attempt(ctx, pri, apiKey, call)
	switch c.classify(payload, err) {
	case outcomeOK:
		return payload, nil
	case outcomeHardFailure:
		return nil, err
	}

	c.logger.Infow("auth failure detected, forcing credential refresh",
		"response", responseMessage(payload), "error", errString(err))

	apiKey, refreshErr := c.creds.ForceRefresh(ctx)
	if refreshErr != nil {
		return nil, fmt.Errorf("refresh after auth failure: %w", refreshErr)
	}

	payload, err = c.attempt(ctx, pri, apiKey, call)
	switch c.classify(payload, err) {
	case outcomeOK:
		return payload, nil
	case outcomeHardFailure:
		return nil, err
	default:
		return nil, fmt.Errorf("%w (last response: %s)", ErrAuthRejected, lastSignal(payload, err))
	}
}

func (c *ResilientClient) attempt(ctx context.Context, pri queue.Priority, apiKey string, call APICall) (Payload, error) {
	result, err := c.q.Enqueue(ctx, func() (any, error) {
		return call(ctx, apiKey)
	}, queue.Options{Priority: pri})
	if err != nil {
		return nil, err
	}
	payload, ok := result.(Payload)
	if !ok {
		return nil, fmt.Errorf("upstream call returned unexpected type %T", result)
	}
	return payload, nil
}

func (c *ResilientClient) classify(payload Payload, err error) callOutcome {
	if err != nil {
		// breaker/queue rejections are infrastructure failures, not a stale
		// key; retrying with a fresh credential would only hammer harder
		if errors.Is(err, breaker.ErrCircuitOpen) || errors.Is(err, queue.ErrSaturated) || errors.Is(err, queue.ErrClosed) {
			return outcomeHardFailure
		}
		if c.detector.IsAuthError(err) {
			return outcomeAuthFailure
		}
		return outcomeHardFailure
	}
	if c.detector.IsAuthPayload(payload) {
		return outcomeAuthFailure
	}
	return outcomeOK
}

func responseMessage(p Payload) string {
	if p == nil {
		return ""
	}
	return p.ResponseMessage()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func lastSignal(p Payload, err error) string {
	if err != nil {
		return err.Error()
	}
	return responseMessage(p)
}
