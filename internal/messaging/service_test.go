package messaging

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/twiliowhatsapp"
	"github.com/aftorrescurrea/chatbot-sub000/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"573001112233", "573001112233", false},
		{"+57 300 111 2233", "573001112233", false},
		{"whatsapp:+573001112233", "573001112233", false},
		{"", "", true},
		{"abc", "", true},
		{"123", "", true},
	}

	for _, c := range cases {
		got, err := canonicalizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q) expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWhatsAppServiceSendEmitsReceipt(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.SendMessage(context.Background(), "+573001112233", "hola"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "573001112233" || receipt.Status != models.StatusTypeSent {
			t.Errorf("receipt = %+v, want sent receipt for canonical number", receipt)
		}
	default:
		t.Fatal("expected a sent receipt")
	}
}

func TestWhatsAppServiceRejectsInvalidRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.SendMessage(context.Background(), "not-a-number", "hola"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTwilioWebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+573001112233")
	form.Set("Body", "hola")
	req := httptest.NewRequest("POST", "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.TwilioWebhookHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("webhook status = %d, want 200", rec.Code)
	}
	select {
	case resp := <-svc.Responses():
		if resp.From != "573001112233" || resp.Body != "hola" {
			t.Errorf("response = %+v, want canonical sender and body", resp)
		}
	default:
		t.Fatal("expected an inbound response")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	req := httptest.NewRequest("POST", "/twilio/webhook", strings.NewReader("From=123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.TwilioWebhookHandler(rec, req)

	if rec.Code != 400 {
		t.Fatalf("webhook status = %d, want 400", rec.Code)
	}
}

func TestTwilioServiceStoppedSendFails(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "573001112233", "hola"); err != ErrServiceStopped {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}
}
