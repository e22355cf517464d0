package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func newProxy(baseURL string, client *http.Client) *proxy {
	if client == nil {
		client = &http.Client{Timeout: time.Second}
	}
	return &proxy{
		cfg:    config{upstreamBaseURL: baseURL, upstreamTimeout: time.Second},
		client: client,
		logger: logging.Discard(),
	}
}

func gatewayEvent(method, path string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method,
				Path:   path,
			},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	resp, err := newProxy("http://example.com", nil).handle(context.Background(), gatewayEvent(http.MethodGet, "/health"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	resp, err := newProxy("http://example.com", nil).handle(context.Background(), gatewayEvent(http.MethodGet, "/voice/handle"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestHandleRejectsUnknownPath(t *testing.T) {
	for _, path := range []string{"/webhooks/unknown", "/api/turns", "/admin/sessions/evict"} {
		resp, err := newProxy("http://example.com", nil).handle(context.Background(), gatewayEvent(http.MethodPost, path))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusNotFound, resp.StatusCode)
		}
	}
}

func TestHandleInvalidBase64Body(t *testing.T) {
	evt := gatewayEvent(http.MethodPost, "/voice/handle")
	evt.Body = "not-base64"
	evt.IsBase64Encoded = true

	resp, err := newProxy("http://example.com", nil).handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || resp.Body != "invalid body" {
		t.Fatalf("expected invalid body response, got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHandleForwardsVoiceWebhook(t *testing.T) {
	type captured struct {
		path    string
		query   string
		headers http.Header
		body    string
	}
	reqCh := make(chan captured, 1)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqCh <- captured{
			path:    r.URL.Path,
			query:   r.URL.RawQuery,
			headers: r.Header.Clone(),
			body:    string(body),
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<Response/>"))
	}))
	defer upstream.Close()

	client := upstream.Client()
	client.Timeout = time.Second

	evt := gatewayEvent(http.MethodPost, "/voice/handle_phone")
	evt.RawQueryString = "attempt=2"
	evt.Body = base64.StdEncoding.EncodeToString([]byte("CallSid=CA1&Digits=8475550123"))
	evt.IsBase64Encoded = true
	evt.Headers = map[string]string{
		"Content-Type":       "application/x-www-form-urlencoded",
		"X-Twilio-Signature": "sig",
	}
	evt.RequestContext.DomainName = "voice.example.com"

	resp, err := newProxy(upstream.URL, client).handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "<Response/>" {
		t.Fatalf("expected upstream response, got %d %q", resp.StatusCode, resp.Body)
	}
	if ct := resp.Headers["content-type"]; ct != "application/xml" {
		t.Fatalf("expected content-type to be forwarded, got %q", ct)
	}

	select {
	case got := <-reqCh:
		if got.path != "/voice/handle_phone" || got.query != "attempt=2" {
			t.Fatalf("unexpected upstream target %s?%s", got.path, got.query)
		}
		if got.body != "CallSid=CA1&Digits=8475550123" {
			t.Fatalf("expected decoded body, got %q", got.body)
		}
		if got.headers.Get("X-Twilio-Signature") != "sig" {
			t.Fatalf("expected twilio signature to be forwarded, got %q", got.headers.Get("X-Twilio-Signature"))
		}
		if got.headers.Get("X-Forwarded-Host") != "voice.example.com" {
			t.Fatalf("expected forwarded host, got %q", got.headers.Get("X-Forwarded-Host"))
		}
		if got.headers.Get("X-Forwarded-Proto") != "https" {
			t.Fatalf("expected default https proto, got %q", got.headers.Get("X-Forwarded-Proto"))
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for upstream request")
	}
}

func TestHandleUpstreamFailureSpeaksApology(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	resp, err := newProxy(upstream.URL, upstream.Client()).handle(context.Background(), gatewayEvent(http.MethodPost, "/voice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 twiml fallback, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Body, "<Hangup>") || resp.Headers["content-type"] != "application/xml" {
		t.Fatalf("expected fallback twiml, got %q", resp.Body)
	}

	resp, err = newProxy(upstream.URL, upstream.Client()).handle(context.Background(), gatewayEvent(http.MethodPost, "/voice/status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status callback to surface upstream status, got %d", resp.StatusCode)
	}
}

func TestHandleUnreachableUpstream(t *testing.T) {
	resp, err := newProxy("http://127.0.0.1:1", nil).handle(context.Background(), gatewayEvent(http.MethodPost, "/voice/handle"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Body, "having trouble answering") {
		t.Fatalf("expected fallback twiml, got %q", resp.Body)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.upstreamBaseURL != "https://api.example.com" || cfg.upstreamTimeout != 12*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
}
