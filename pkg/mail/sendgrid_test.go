package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/receipts-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.MailConfig{
		SendgridAPIKey: "sg-key",
		From:           "receipts@example.com",
		SendTimeout:    5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.endpoint = srv.URL
	return client, srv
}

func TestSendEncodesAttachment(t *testing.T) {
	var got sendgridPayload
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sg-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.Send(context.Background(), Message{
		To:      "buyer@example.com",
		Subject: "Your receipt",
		HTML:    "<p>attached</p>",
		Attachments: []Attachment{{
			Filename:    "receipt_ord_1.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF"),
		}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "buyer@example.com" {
		t.Fatalf("unexpected personalizations %+v", got.Personalizations)
	}
	if got.From.Email != "receipts@example.com" {
		t.Fatalf("unexpected from %q", got.From.Email)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(got.Attachments))
	}
	if got.Attachments[0].Content != base64.StdEncoding.EncodeToString([]byte("%PDF")) {
		t.Fatalf("attachment not base64 encoded: %q", got.Attachments[0].Content)
	}
	if got.Attachments[0].Disposition != "attachment" {
		t.Fatalf("unexpected disposition %q", got.Attachments[0].Disposition)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	})

	err := client.Send(context.Background(), Message{
		To:      "buyer@example.com",
		Subject: "Your receipt",
		Text:    "hello",
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("error should include response body, got %v", err)
	}
}

func TestSendValidatesMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent for invalid messages")
	})

	cases := []Message{
		{Subject: "s", Text: "b"},
		{To: "a@b.c", Text: "b"},
		{To: "a@b.c", Subject: "s"},
	}
	for _, msg := range cases {
		if err := client.Send(context.Background(), msg); err == nil {
			t.Fatalf("expected validation error for %+v", msg)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.MailConfig{}, nil); err == nil {
		t.Fatal("expected error without credentials")
	}
}
