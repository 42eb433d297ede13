package router

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/ledger"
	"github.com/azad-ai/azad_bot/internal/logging"
	"github.com/azad-ai/azad_bot/internal/notification"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return nil
}

func postMessage(t *testing.T, app *fiber.App, form url.Values) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/message", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, resp.Header.Get(fiber.HeaderContentType), string(body)
}

func newWebhookApp(t *testing.T, r *Router, mode string) (*fiber.App, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	h := NewHandler(r, notifier, mode, logging.Discard())
	app := fiber.New()
	app.Post("/webhooks/message", h.InboundMessage)
	return app, notifier
}

func TestInboundMessageAPIMode(t *testing.T) {
	r, _ := newTestRouter(t, Collaborators{})
	app, notifier := newWebhookApp(t, r, ModeAPI)

	status, _, body := postMessage(t, app, url.Values{"From": {sender}, "Body": {"help"}})
	if status != fiber.StatusOK || body != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", status, body)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one reply sent, got %d", len(notifier.sent))
	}
	if got := notifier.sent[0]; got.Destination != senderID || !strings.Contains(got.Body, "subscribe first") {
		t.Fatalf("unexpected reply %+v", got)
	}
}

func TestInboundMessageTwiMLMode(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	activate(t, l)
	app, notifier := newWebhookApp(t, r, ModeTwiML)

	status, contentType, body := postMessage(t, app, url.Values{"From": {sender}, "Body": {"bp 120/80 <ok>"}})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.HasPrefix(contentType, "text/xml") {
		t.Fatalf("unexpected content type %s", contentType)
	}
	if !strings.Contains(body, "<Response><Message>Usage: bp &lt;systolic&gt;/&lt;diastolic&gt;") {
		t.Fatalf("unexpected twiml %s", body)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("twiml mode must not call the send API")
	}
}

func TestInboundMessageInvalidSender(t *testing.T) {
	r, _ := newTestRouter(t, Collaborators{})
	app, notifier := newWebhookApp(t, r, ModeTwiML)

	status, _, body := postMessage(t, app, url.Values{"From": {"whatsapp:abc"}, "Body": {"hi"}})
	if status != fiber.StatusOK || !strings.Contains(body, replyInvalidIdentity) {
		t.Fatalf("expected fixed reply, got %d %q", status, body)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("nothing should be sent to an unknown sender")
	}
}

func TestInboundMessageMediaClaim(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	app, _ := newWebhookApp(t, r, ModeAPI)

	form := url.Values{"From": {sender}, "NumMedia": {"1"}, "MediaUrl0": {"https://media.example/receipt.jpg"}}
	if status, _, _ := postMessage(t, app, form); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	rec, err := l.Get(context.Background(), senderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != ledger.StatePending {
		t.Fatalf("expected pending after receipt upload, got %s", rec.State)
	}
}

func TestReadMessageCapsMediaCount(t *testing.T) {
	form := map[string]string{
		"From":       sender,
		"NumMedia":   "2147483647",
		"MediaUrl0":  "https://media.example/0",
		"MediaUrl9":  "https://media.example/9",
		"MediaUrl10": "https://media.example/10",
	}
	lookups := 0
	msg := readMessage(func(key string) string {
		lookups++
		return form[key]
	})

	if msg.NumMedia != maxMedia {
		t.Fatalf("expected media count capped at %d, got %d", maxMedia, msg.NumMedia)
	}
	if lookups > maxMedia+3 {
		t.Fatalf("expected at most %d form lookups, got %d", maxMedia+3, lookups)
	}
	if len(msg.MediaURLs) != 2 || msg.MediaURLs[1] != "https://media.example/9" {
		t.Fatalf("unexpected media urls %v", msg.MediaURLs)
	}
}

func TestInboundMessageHugeMediaCountIsStillAClaim(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	app, _ := newWebhookApp(t, r, ModeAPI)

	form := url.Values{"From": {sender}, "NumMedia": {"2147483647"}}
	if status, _, _ := postMessage(t, app, form); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	rec, err := l.Get(context.Background(), senderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != ledger.StatePending {
		t.Fatalf("expected pending after media claim, got %s", rec.State)
	}
}

func TestInboundMessageStorageFailure(t *testing.T) {
	r := New(failingLedger{ledger.New(ledger.NewMemoryStore())}, Collaborators{}, "IN", logging.Discard())
	app, notifier := newWebhookApp(t, r, ModeAPI)

	status, _, _ := postMessage(t, app, url.Values{"From": {sender}, "Body": {"help"}})
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Body != replyApology {
		t.Fatalf("expected apology to be sent, got %+v", notifier.sent)
	}
}
