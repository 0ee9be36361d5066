// Package remote holds the HTTP plumbing shared by the tracker, timer, and
// calendar clients: PAT auth, per-call timeouts, correlation IDs, status
// classification, and bounded retry for read-only calls.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

const (
	defaultCallTimeout = 15 * time.Second
	correlationHeader  = "X-Correlation-Id"
)

// Doer is the subset of http.Client the callers need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a base REST client bound to one remote source.
type Client struct {
	HTTP        Doer
	BaseURL     string
	Source      models.Source
	PAT         string
	CallTimeout time.Duration

	correlation string
}

// NewClient builds a base client for the given source.
func NewClient(source models.Source, baseURL, pat string) *Client {
	return &Client{
		HTTP:        &http.Client{},
		BaseURL:     baseURL,
		Source:      source,
		PAT:         pat,
		CallTimeout: defaultCallTimeout,
		correlation: newCorrelationID(),
	}
}

// newCorrelationID returns a ULID identifying this process invocation on
// the remote side.
func newCorrelationID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// AuthHeader encodes the PAT as basic auth with an empty username.
func (c *Client) AuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+c.PAT))
}

// Do issues a request with a per-call timeout and decodes a JSON response
// into out (out may be nil). Failures are classified: transport errors are
// network-class, 401/403 map to AuthError, other non-2xx are rejected-class.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", c.AuthHeader())
	req.Header.Set(correlationHeader, c.correlation)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &faults.RemoteError{Source: c.Source, Kind: faults.RemoteNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &faults.AuthError{Source: c.Source, Err: fmt.Errorf("credential rejected (status %d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &faults.RemoteError{
			Source: c.Source,
			Kind:   faults.RemoteRejected,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s %s: %s", method, path, bytes.TrimSpace(msg)),
		}
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &faults.RemoteError{Source: c.Source, Kind: faults.RemoteNetwork, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &faults.RemoteError{
			Source: c.Source,
			Kind:   faults.RemoteRejected,
			Err:    fmt.Errorf("decode %s response: %w", path, err),
		}
	}
	return nil
}

// Retry runs a read-only operation with bounded exponential backoff.
// Mutating calls must never go through here: they get idempotency from
// check-before-write, not blind retry.
func Retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), 3), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var remoteErr *faults.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
