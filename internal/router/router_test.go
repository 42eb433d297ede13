package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/azad-ai/azad_bot/internal/feeds"
	"github.com/azad-ai/azad_bot/internal/ledger"
	"github.com/azad-ai/azad_bot/internal/logging"
)

const sender = "whatsapp:+911234567890"
const senderID = "+911234567890"

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeNews struct {
	headlines []string
	err       error
}

func (f fakeNews) FetchHeadlines(context.Context, int) ([]string, error) { return f.headlines, f.err }

type fakePosts struct {
	posts []feeds.Post
	err   error
}

func (f fakePosts) FetchPosts(context.Context, int) ([]feeds.Post, error) { return f.posts, f.err }

type fakeAssistant struct {
	answer string
	err    error
	asked  string
}

func (f *fakeAssistant) Answer(_ context.Context, q string) (string, error) {
	f.asked = q
	return f.answer, f.err
}

type fakeLinks struct {
	link string
	err  error
}

func (f fakeLinks) CreatePaymentLink(context.Context, string) (string, error) { return f.link, f.err }

func newTestRouter(t *testing.T, collab Collaborators) (*Router, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore(), ledger.WithClock(func() time.Time { return fixedNow }))
	return New(l, collab, "IN", logging.Discard()), l
}

func activate(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	if _, err := l.RecordPayment(context.Background(), senderID, 30, "seed"); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func handle(t *testing.T, r *Router, body string) Reply {
	t.Helper()
	reply, err := r.Handle(context.Background(), Message{From: sender, Body: body})
	if err != nil {
		t.Fatalf("handle %q: %v", body, err)
	}
	return reply
}

func TestHandleRejectsOutOfRangeBPWithoutWriting(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	activate(t, l)
	before, _ := l.Get(context.Background(), senderID)

	reply := handle(t, r, "bp 300 80")
	if !strings.Contains(reply.Text, "Invalid") || !strings.Contains(reply.Text, "Usage") {
		t.Fatalf("expected invalid reading with usage, got %q", reply.Text)
	}

	after, _ := l.Get(context.Background(), senderID)
	if after.LastBPReading != nil || after.Version != before.Version {
		t.Fatalf("record written on invalid reading: %+v", after)
	}
}

func TestHandleGatesInactiveUsers(t *testing.T) {
	r, _ := newTestRouter(t, Collaborators{})

	for _, body := range []string{"help", "news", "bp 120/80", "ask hi"} {
		reply := handle(t, r, body)
		if !strings.Contains(reply.Text, "subscribe first") {
			t.Fatalf("%q: expected gated reply, got %q", body, reply.Text)
		}
		if strings.Contains(reply.Text, "Commands:") {
			t.Fatalf("%q: help text leaked to inactive user", body)
		}
	}
}

func TestHandleCreatesRecordOnFirstContact(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	handle(t, r, "hello")

	rec, err := l.Get(context.Background(), senderID)
	if err != nil {
		t.Fatalf("expected record after first contact: %v", err)
	}
	if rec.State != ledger.StateUnsubscribed {
		t.Fatalf("expected unsubscribed, got %s", rec.State)
	}
}

func TestHandleInvalidIdentity(t *testing.T) {
	r, _ := newTestRouter(t, Collaborators{})
	reply, err := r.Handle(context.Background(), Message{From: "whatsapp:not-a-number", Body: "help"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply.To != "" || reply.Text != replyInvalidIdentity {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestHandlePaymentClaim(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})

	reply := handle(t, r, "  I   Paid ")
	if !strings.Contains(reply.Text, "confirming your payment") {
		t.Fatalf("unexpected claim reply %q", reply.Text)
	}
	if active, _ := l.IsActive(context.Background(), senderID); !active {
		t.Fatal("expected claim to grant pending access")
	}
	if reply := handle(t, r, "help"); !strings.Contains(reply.Text, "Commands:") {
		t.Fatalf("expected help during claim grace, got %q", reply.Text)
	}

	reply = handle(t, r, "paid")
	if !strings.Contains(reply.Text, "still confirming") {
		t.Fatalf("expected second claim to be refused, got %q", reply.Text)
	}
}

func TestHandleUsedUpClaimIsExplained(t *testing.T) {
	now := fixedNow
	l := ledger.New(ledger.NewMemoryStore(), ledger.WithClock(func() time.Time { return now }))
	r := New(l, Collaborators{}, "IN", logging.Discard())

	handle(t, r, "paid")
	now = now.Add(25 * time.Hour)

	reply := handle(t, r, "paid")
	if !strings.Contains(reply.Text, "temporary access after claiming payment has ended") {
		t.Fatalf("expected used-up claim reply, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "still confirming") {
		t.Fatalf("used-up claim must not claim confirmation is in progress: %q", reply.Text)
	}
	if reply := handle(t, r, "help"); !strings.Contains(reply.Text, "subscribe first") {
		t.Fatalf("expected user to stay gated, got %q", reply.Text)
	}
}

func TestHandleExpiredSubscriberIsGated(t *testing.T) {
	store := ledger.NewMemoryStore()
	lapsed := fixedNow.Add(-time.Hour)
	ledger.SeedRecord(store, ledger.UserRecord{Identity: senderID, State: ledger.StateActive, SubscribedUntil: &lapsed})
	l := ledger.New(store, ledger.WithClock(func() time.Time { return fixedNow }))
	r := New(l, Collaborators{}, "IN", logging.Discard())

	if reply := handle(t, r, "help"); !strings.Contains(reply.Text, "subscribe first") {
		t.Fatalf("expected lapsed subscriber to be gated, got %q", reply.Text)
	}
}

func TestHandleBPHistoryWithoutReadings(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	activate(t, l)
	if reply := handle(t, r, "bp history"); !strings.Contains(reply.Text, "No blood pressure readings yet") {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestHandleMediaIsTreatedAsClaim(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	_, err := r.Handle(context.Background(), Message{From: sender, Body: "", NumMedia: 1, MediaURLs: []string{"https://media.example/1"}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, _ := l.Get(context.Background(), senderID)
	if rec.State != ledger.StatePending {
		t.Fatalf("expected pending, got %s", rec.State)
	}
}

func TestHandleClaimFromActiveSubscriber(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{})
	activate(t, l)
	if reply := handle(t, r, "paid"); !strings.Contains(reply.Text, "already active") {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestHandleSubscribe(t *testing.T) {
	r, _ := newTestRouter(t, Collaborators{Links: fakeLinks{link: "https://pay.example/abc"}})
	if reply := handle(t, r, "subscribe"); !strings.Contains(reply.Text, "https://pay.example/abc") {
		t.Fatalf("expected payment link, got %q", reply.Text)
	}

	r, _ = newTestRouter(t, Collaborators{Links: fakeLinks{err: errors.New("boom")}})
	if reply := handle(t, r, "pay"); reply.Text != replyApology {
		t.Fatalf("expected apology, got %q", reply.Text)
	}
}

func TestHandleGatedCommands(t *testing.T) {
	assistant := &fakeAssistant{answer: "Paris"}
	collab := Collaborators{
		News:      fakeNews{headlines: []string{"One", "Two"}},
		Posts:     fakePosts{posts: []feeds.Post{{Text: "Launch", Link: "https://fb.example/1"}}},
		Assistant: assistant,
	}
	cases := []struct {
		body string
		want string
	}{
		{"HELLO", "I am Azad AI"},
		{"help", "Commands:"},
		{"status", "active until 31 Mar 2026"},
		{"news", "Latest News:\n- One\n- Two"},
		{"facebook", "Facebook Updates:\nLaunch\nhttps://fb.example/1"},
		{"bp 120/80", "Logged your BP reading: 120/80"},
		{"bp", "Your last BP reading: 120/80"},
		{"bp 130 85", "Logged your BP reading: 130/85"},
		{"bp history", "Your recent BP readings:\n- 130/85"},
		{"BP History", "- 120/80"},
		{"bp high", usageBP},
		{"navigate 12.97 77.59 13.08 80.27", "https://www.google.com/maps/dir/12.97,77.59/13.08,80.27"},
		{"navigate 12.97 77.59", usageNavigate},
		{"navigate 95 77.59 13.08 80.27", usageNavigate},
		{"ask What is the capital of France?", "Paris"},
		{"ask", usageAsk},
		{"bpm", replyUnknown},
		{"weather", replyUnknown},
	}

	r, l := newTestRouter(t, collab)
	activate(t, l)
	for _, tc := range cases {
		reply := handle(t, r, tc.body)
		if !strings.Contains(reply.Text, tc.want) {
			t.Fatalf("%q: expected %q in reply, got %q", tc.body, tc.want, reply.Text)
		}
		if reply.To != senderID {
			t.Fatalf("%q: unexpected recipient %s", tc.body, reply.To)
		}
	}
	if assistant.asked != "What is the capital of France?" {
		t.Fatalf("question lost its casing: %q", assistant.asked)
	}
}

func TestHandleUpstreamFailuresApologise(t *testing.T) {
	fail := errors.New("connection refused")
	collab := Collaborators{
		News:      fakeNews{err: fail},
		Posts:     fakePosts{err: fail},
		Assistant: &fakeAssistant{err: fail},
	}
	r, l := newTestRouter(t, collab)
	activate(t, l)

	for _, body := range []string{"news", "facebook", "ask anything"} {
		reply, err := r.Handle(context.Background(), Message{From: sender, Body: body})
		if err != nil {
			t.Fatalf("%q: upstream failure must not surface: %v", body, err)
		}
		if reply.Text != replyApology {
			t.Fatalf("%q: expected apology, got %q", body, reply.Text)
		}
	}
}

func TestHandleEmptyFeeds(t *testing.T) {
	r, l := newTestRouter(t, Collaborators{News: fakeNews{}, Posts: fakePosts{}})
	activate(t, l)
	if reply := handle(t, r, "news"); reply.Text != "No news found." {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	if reply := handle(t, r, "facebook"); reply.Text != "No Facebook posts found." {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

var errStorage = errors.New("disk full")

type failingLedger struct {
	*ledger.Ledger
}

func (failingLedger) Ensure(context.Context, string) (ledger.UserRecord, error) {
	return ledger.UserRecord{}, errStorage
}

func TestHandleStorageFailureIsReturned(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	r := New(failingLedger{l}, Collaborators{}, "IN", logging.Discard())

	reply, err := r.Handle(context.Background(), Message{From: sender, Body: "help"})
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if reply.Text != replyApology || reply.To != senderID {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
