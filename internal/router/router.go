// Package router turns inbound chat messages into replies. It resolves the
// sender, gates commands on the subscription ledger and delegates content to
// external collaborators.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/feeds"
	"github.com/azad-ai/azad_bot/internal/identity"
	"github.com/azad-ai/azad_bot/internal/ledger"
	"github.com/azad-ai/azad_bot/internal/paylink"
)

var (
	// ErrUpstreamUnavailable wraps any collaborator failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedArgs signals wrong arity or type in a command's arguments.
	ErrMalformedArgs = errors.New("malformed command arguments")
)

const (
	replyInvalidIdentity = "Sorry, we could not recognise your number."
	replySubscribeFirst  = "Please subscribe first to use Azad AI. Send 'subscribe' to get a payment link."
	replyUnknown         = "Unknown command. Send 'help' for the commands list."
	replyApology         = "Sorry, something went wrong on our side. Please try again in a little while."
)

// Message is an inbound chat message as received from the provider.
type Message struct {
	From      string
	Body      string
	NumMedia  int
	MediaURLs []string
}

// Reply is the text to send back. To is empty when the sender could not be identified.
type Reply struct {
	To   string
	Text string
}

// Ledger is the subset of the subscription ledger the router relies on.
type Ledger interface {
	Now() time.Time
	Get(ctx context.Context, id string) (ledger.UserRecord, error)
	Ensure(ctx context.Context, id string) (ledger.UserRecord, error)
	IsActive(ctx context.Context, id string) (bool, error)
	ClaimPaid(ctx context.Context, id string) (ledger.UserRecord, error)
	RecordBP(ctx context.Context, id string, systolic, diastolic int) (ledger.UserRecord, error)
}

// NewsSource returns current headlines.
type NewsSource interface {
	FetchHeadlines(ctx context.Context, limit int) ([]string, error)
}

// PostSource returns recent social posts.
type PostSource interface {
	FetchPosts(ctx context.Context, limit int) ([]feeds.Post, error)
}

// Answerer answers free-form questions.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Collaborators groups the external services commands delegate to.
type Collaborators struct {
	News      NewsSource
	Posts     PostSource
	Assistant Answerer
	Links     paylink.Creator
}

// Router maps (identity, text) to a reply.
type Router struct {
	ledger  Ledger
	collab  Collaborators
	region  string
	logger  *slog.Logger
	ungated []Command
	gated   []Command
}

// New builds a router. region is the default used to parse numbers without a country code.
func New(l Ledger, collab Collaborators, region string, logger *slog.Logger) *Router {
	r := &Router{ledger: l, collab: collab, region: region, logger: logger}
	r.ungated = r.ungatedCommands()
	r.gated = r.gatedCommands()
	return r
}

// Handle routes one message. The returned error is non-nil only for ledger
// storage failures; the reply then carries an apology.
func (r *Router) Handle(ctx context.Context, msg Message) (Reply, error) {
	id, err := identity.Normalize(msg.From, r.region)
	if err != nil {
		r.logger.Warn("unrecognised sender", slog.String("from", msg.From))
		return Reply{Text: replyInvalidIdentity}, nil
	}

	req := newRequest(id, msg)
	if _, err := r.ledger.Ensure(ctx, id); err != nil {
		return r.storageFailure(id, "ensure", err)
	}

	if text, ok, err := r.dispatch(ctx, r.ungated, req); ok {
		return Reply{To: id, Text: text}, err
	}

	active, err := r.ledger.IsActive(ctx, id)
	if err != nil {
		return r.storageFailure(id, "gate", err)
	}
	if !active {
		return Reply{To: id, Text: replySubscribeFirst}, nil
	}

	if text, ok, err := r.dispatch(ctx, r.gated, req); ok {
		return Reply{To: id, Text: text}, err
	}
	return Reply{To: id, Text: replyUnknown}, nil
}

// dispatch runs the first command in table whose matcher accepts req.
func (r *Router) dispatch(ctx context.Context, table []Command, req *Request) (string, bool, error) {
	for _, cmd := range table {
		args, ok := cmd.Match(req)
		if !ok {
			continue
		}
		req.Args = args
		text, err := cmd.Run(ctx, req)
		text, err = r.resolve(cmd, req, text, err)
		return text, true, err
	}
	return "", false, nil
}

// resolve converts command errors into user-facing replies. Only storage
// failures are passed on to the caller.
func (r *Router) resolve(cmd Command, req *Request, text string, err error) (string, error) {
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, ErrMalformedArgs):
		return cmd.Usage, nil
	case errors.Is(err, ledger.ErrInvalidReading):
		return "Invalid blood pressure reading. " + cmd.Usage, nil
	case errors.Is(err, ErrUpstreamUnavailable):
		r.logger.Warn("collaborator failed", slog.String("command", cmd.Name), slog.String("identity", req.Identity), slog.Any("error", err))
		return replyApology, nil
	default:
		r.logger.Error("command failed", slog.String("command", cmd.Name), slog.String("identity", req.Identity), slog.Any("error", err))
		return replyApology, fmt.Errorf("%s: %w", cmd.Name, err)
	}
}

func (r *Router) storageFailure(id, stage string, err error) (Reply, error) {
	r.logger.Error("ledger unavailable", slog.String("stage", stage), slog.String("identity", id), slog.Any("error", err))
	return Reply{To: id, Text: replyApology}, fmt.Errorf("%s %s: %w", stage, id, err)
}

func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

// Request is the routed form of a message.
type Request struct {
	Identity string
	Message  Message
	// Normalized is the lowercased body with runs of whitespace collapsed.
	Normalized string
	// Args is the remainder of the body after the command keyword, original casing.
	Args string
}

func newRequest(id string, msg Message) *Request {
	return &Request{
		Identity:   id,
		Message:    msg,
		Normalized: strings.ToLower(strings.Join(strings.Fields(msg.Body), " ")),
	}
}
