package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := DefaultConfig()
	c.BaseURL = url
	c.APIKey = "sk-test"
	c.Timeout = 5 * time.Second
	c.RetryDelay = time.Millisecond
	return NewClient(c)
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4-20250514", req.Model)
		assert.Equal(t, "be terse", req.System)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "hello", req.Messages[0].Content)
		}

		_, _ = w.Write([]byte(`{"content":[
			{"type":"text","text":"  part one "},
			{"type":"tool_use","text":"ignored"},
			{"type":"text","text":"part two  "}
		]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Complete(context.Background(), "be terse", "hello")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
}

func TestCompleteOmitsEmptySystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, has := raw["system"]
		assert.False(t, has)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
}

func TestCompleteStatusErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "", "hi")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "Anthropic API 401", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(529)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"recovered"}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Complete(context.Background(), "", "hi")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestCompleteRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"` + strings.Repeat("x", 2048) + `"}]}`))
	}))
	defer srv.Close()

	c := DefaultConfig()
	c.BaseURL = srv.URL
	c.MaxRetries = 1
	c.MaxResponseBytes = 1024
	_, err := NewClient(c).Complete(context.Background(), "", "hi")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "exceeds 1024 bytes")

	c.MaxResponseBytes = 0
	text, err := NewClient(c).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Len(t, text, 2048)
}
