package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/ledger"
)

const (
	headlineLimit = 5
	postLimit     = 3
	historyLimit  = 5
	dateLayout    = "2 Jan 2006"
)

const (
	usageBP       = "Usage: bp <systolic>/<diastolic> (e.g. bp 120/80), or bp history"
	usageNavigate = "Usage: navigate <from_lat> <from_lon> <to_lat> <to_lon>"
	usageAsk      = "Usage: ask <your question>"
)

const greeting = "Hello! I am Azad AI.\n" +
	"You can send commands like:\n" +
	"- news\n- facebook\n- bp <systolic>/<diastolic>\n" +
	"- navigate <from_lat> <from_lon> <to_lat> <to_lon>\n" +
	"- ask <your question>\n" +
	"- status"

const helpText = "Commands:\n" +
	"news - latest news headlines\n" +
	"facebook - Facebook page updates\n" +
	"bp 120/80 - log blood pressure (send 'bp' for your last reading, 'bp history' for recent ones)\n" +
	"navigate <from_lat> <from_lon> <to_lat> <to_lon> - Google Maps directions\n" +
	"ask <question> - ask the AI assistant\n" +
	"status - subscription status\n" +
	"subscribe - get a payment link\n" +
	"paid - tell us you have paid"

// Command pairs a matcher with the handler it selects.
type Command struct {
	Name  string
	Usage string
	Match func(req *Request) (args string, ok bool)
	Run   func(ctx context.Context, req *Request) (string, error)
}

// keyword matches the whole message against any of words.
func keyword(words ...string) func(*Request) (string, bool) {
	return func(req *Request) (string, bool) {
		for _, w := range words {
			if req.Normalized == w {
				return "", true
			}
		}
		return "", false
	}
}

// prefixed matches word alone or followed by arguments.
func prefixed(word string) func(*Request) (string, bool) {
	return func(req *Request) (string, bool) {
		if req.Normalized != word && !strings.HasPrefix(req.Normalized, word+" ") {
			return "", false
		}
		body := strings.TrimSpace(req.Message.Body)
		return strings.TrimSpace(body[len(word):]), true
	}
}

func (r *Router) ungatedCommands() []Command {
	claim := keyword("paid", "i paid", "payment done")
	return []Command{
		{
			Name: "claim",
			Match: func(req *Request) (string, bool) {
				if req.Message.NumMedia > 0 {
					return "", true
				}
				return claim(req)
			},
			Run: r.claimPaid,
		},
		{Name: "subscribe", Match: keyword("subscribe", "pay"), Run: r.subscribe},
	}
}

func (r *Router) gatedCommands() []Command {
	return []Command{
		{Name: "greeting", Match: keyword("hi", "hello", "start"), Run: constant(greeting)},
		{Name: "help", Match: keyword("help"), Run: constant(helpText)},
		{Name: "status", Match: keyword("status"), Run: r.status},
		{Name: "news", Match: keyword("news"), Run: r.news},
		{Name: "facebook", Match: keyword("facebook"), Run: r.facebook},
		{Name: "bp", Usage: usageBP, Match: prefixed("bp"), Run: r.bloodPressure},
		{Name: "navigate", Usage: usageNavigate, Match: prefixed("navigate"), Run: navigate},
		{Name: "ask", Usage: usageAsk, Match: prefixed("ask"), Run: r.ask},
	}
}

func constant(text string) func(context.Context, *Request) (string, error) {
	return func(context.Context, *Request) (string, error) { return text, nil }
}

func (r *Router) claimPaid(ctx context.Context, req *Request) (string, error) {
	rec, err := r.ledger.ClaimPaid(ctx, req.Identity)
	if errors.Is(err, ledger.ErrClaimAlreadyPending) {
		return "We are still confirming your earlier payment with the processor. " +
			"Your subscription will be activated as soon as it is confirmed.", nil
	}
	if errors.Is(err, ledger.ErrClaimExpired) {
		return "Your temporary access after claiming payment has ended and we have not received " +
			"confirmation from the processor yet. If you paid, it will be activated once confirmed. " +
			"Otherwise send 'subscribe' for a payment link.", nil
	}
	if err != nil {
		return "", err
	}

	now := r.ledger.Now()
	switch rec.Status(now) {
	case ledger.StateActive:
		return fmt.Sprintf("Your subscription is already active until %s.", rec.SubscribedUntil.Format(dateLayout)), nil
	case ledger.StatePending:
		return fmt.Sprintf("Thanks! We are confirming your payment. You have access until %s in the meantime.",
			rec.PendingUntil.Format(time.RFC1123)), nil
	}
	return "Thanks! We are confirming your payment.", nil
}

func (r *Router) subscribe(ctx context.Context, req *Request) (string, error) {
	if r.collab.Links == nil {
		return "", upstream(errors.New("no payment link creator"))
	}
	link, err := r.collab.Links.CreatePaymentLink(ctx, req.Identity)
	if err != nil {
		return "", upstream(err)
	}
	return "Complete your Azad AI subscription here:\n" + link + "\nSend 'paid' once you have paid.", nil
}

func (r *Router) status(ctx context.Context, req *Request) (string, error) {
	rec, err := r.ledger.Get(ctx, req.Identity)
	if err != nil {
		return "", err
	}
	now := r.ledger.Now()
	switch rec.Status(now) {
	case ledger.StateActive:
		return fmt.Sprintf("Your subscription is active until %s.", rec.SubscribedUntil.Format(dateLayout)), nil
	case ledger.StatePending:
		return fmt.Sprintf("Your payment is being confirmed. Access is granted until %s.", rec.PendingUntil.Format(time.RFC1123)), nil
	}
	return replySubscribeFirst, nil
}

func (r *Router) news(ctx context.Context, _ *Request) (string, error) {
	if r.collab.News == nil {
		return "", upstream(errors.New("no news source"))
	}
	headlines, err := r.collab.News.FetchHeadlines(ctx, headlineLimit)
	if err != nil {
		return "", upstream(err)
	}
	if len(headlines) == 0 {
		return "No news found.", nil
	}
	var b strings.Builder
	b.WriteString("Latest News:")
	for _, h := range headlines {
		b.WriteString("\n- ")
		b.WriteString(h)
	}
	return b.String(), nil
}

func (r *Router) facebook(ctx context.Context, _ *Request) (string, error) {
	if r.collab.Posts == nil {
		return "", upstream(errors.New("no post source"))
	}
	posts, err := r.collab.Posts.FetchPosts(ctx, postLimit)
	if err != nil {
		return "", upstream(err)
	}
	if len(posts) == 0 {
		return "No Facebook posts found.", nil
	}
	entries := make([]string, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, strings.TrimSpace(p.Text+"\n"+p.Link))
	}
	return "Facebook Updates:\n" + strings.Join(entries, "\n\n"), nil
}

func (r *Router) bloodPressure(ctx context.Context, req *Request) (string, error) {
	if req.Args == "" {
		rec, err := r.ledger.Get(ctx, req.Identity)
		if err != nil {
			return "", err
		}
		if rec.LastBPReading == nil {
			return "No blood pressure readings yet. " + usageBP, nil
		}
		bp := rec.LastBPReading
		return fmt.Sprintf("Your last BP reading: %d/%d (%s)", bp.Systolic, bp.Diastolic, bp.RecordedAt.Format(dateLayout)), nil
	}

	if strings.EqualFold(req.Args, "history") {
		return r.bloodPressureHistory(ctx, req)
	}

	systolic, diastolic, err := parseReading(req.Args)
	if err != nil {
		return "", err
	}
	if _, err := r.ledger.RecordBP(ctx, req.Identity, systolic, diastolic); err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged your BP reading: %d/%d", systolic, diastolic), nil
}

func (r *Router) bloodPressureHistory(ctx context.Context, req *Request) (string, error) {
	rec, err := r.ledger.Get(ctx, req.Identity)
	if err != nil {
		return "", err
	}
	readings := rec.RecentReadings(historyLimit)
	if len(readings) == 0 {
		return "No blood pressure readings yet. " + usageBP, nil
	}
	var b strings.Builder
	b.WriteString("Your recent BP readings:")
	for _, bp := range readings {
		fmt.Fprintf(&b, "\n- %d/%d (%s)", bp.Systolic, bp.Diastolic, bp.RecordedAt.Format(dateLayout))
	}
	return b.String(), nil
}

// parseReading accepts "120/80" or "120 80".
func parseReading(args string) (int, int, error) {
	parts := strings.Fields(strings.ReplaceAll(args, "/", " "))
	if len(parts) != 2 {
		return 0, 0, ErrMalformedArgs
	}
	systolic, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, ErrMalformedArgs
	}
	diastolic, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, ErrMalformedArgs
	}
	return systolic, diastolic, nil
}

func navigate(_ context.Context, req *Request) (string, error) {
	parts := strings.Fields(req.Args)
	if len(parts) != 4 {
		return "", ErrMalformedArgs
	}
	coords := make([]string, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return "", ErrMalformedArgs
		}
		limit := 90.0
		if i%2 == 1 {
			limit = 180
		}
		if v < -limit || v > limit {
			return "", ErrMalformedArgs
		}
		coords[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	link := fmt.Sprintf("https://www.google.com/maps/dir/%s,%s/%s,%s", coords[0], coords[1], coords[2], coords[3])
	return "Navigation link: " + link, nil
}

func (r *Router) ask(ctx context.Context, req *Request) (string, error) {
	if req.Args == "" {
		return "", ErrMalformedArgs
	}
	if r.collab.Assistant == nil {
		return "", upstream(errors.New("no assistant"))
	}
	answer, err := r.collab.Assistant.Answer(ctx, req.Args)
	if err != nil {
		return "", upstream(err)
	}
	return answer, nil
}
