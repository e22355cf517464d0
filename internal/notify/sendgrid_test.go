package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil); sender != nil {
		t.Fatal("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSenderFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.from.name != defaultFromName {
		t.Errorf("expected default from name, got %q", sender.from.name)
	}

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com", FromName: "Custom Name"}, nil)
	if sender.from.name != "Custom Name" {
		t.Errorf("expected from name 'Custom Name', got %q", sender.from.name)
	}
}

func TestSendGridSenderSendWithoutClient(t *testing.T) {
	var sender *SendGridSender
	if err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err == nil {
		t.Fatal("expected error for unconfigured sender")
	}
}

func TestSendGridSenderSend(t *testing.T) {
	var gotAuth string
	var payload struct {
		Subject    string   `json:"subject"`
		Categories []string `json:"categories"`
		ReplyTo    struct {
			Email string `json:"email"`
		} `json:"reply_to"`
		From struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"from"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "front@clinic.test",
		FromName:  "Lakeview Wellness",
		Host:      srv.URL,
	}, logging.Discard())

	err := sender.Send(context.Background(), EmailMessage{
		To:       "owner@clinic.test",
		ReplyTo:  "desk@clinic.test",
		Subject:  "New appointment",
		Body:     "Jane Doe booked acupuncture",
		Category: CategoryBooking,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer SG.test" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if payload.Subject != "New appointment" || payload.From.Name != "Lakeview Wellness" || payload.From.Email != "front@clinic.test" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if len(payload.Categories) != 1 || payload.Categories[0] != CategoryBooking {
		t.Errorf("expected booking category, got %v", payload.Categories)
	}
	if payload.ReplyTo.Email != "desk@clinic.test" {
		t.Errorf("expected reply-to, got %q", payload.ReplyTo.Email)
	}
}

func TestSendGridSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.bad", FromEmail: "front@clinic.test", Host: srv.URL}, logging.Discard())
	err := sender.Send(context.Background(), EmailMessage{To: "owner@clinic.test", Subject: "x", Body: "y"})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status error, got %v", err)
	}
}
