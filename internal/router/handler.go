package router

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/notification"
)

// Reply modes.
const (
	ModeAPI   = "api"
	ModeTwiML = "twiml"
)

const sendTimeout = 10 * time.Second

// maxMedia is the most attachments the provider sends with one message.
const maxMedia = 10

// Handler exposes the inbound message webhook.
type Handler struct {
	router   *Router
	notifier notification.Notifier
	mode     string
	logger   *slog.Logger
}

// NewHandler constructs the webhook handler. In api mode replies go out through
// notifier; in twiml mode they are returned in the HTTP response.
func NewHandler(r *Router, notifier notification.Notifier, mode string, logger *slog.Logger) *Handler {
	return &Handler{router: r, notifier: notifier, mode: mode, logger: logger}
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// InboundMessage handles a provider webhook carrying one user message.
func (h *Handler) InboundMessage(c *fiber.Ctx) error {
	msg := readMessage(func(key string) string { return c.FormValue(key) })

	reply, err := h.router.Handle(c.UserContext(), msg)
	if err != nil {
		if h.mode == ModeAPI {
			h.send(reply)
		}
		return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
	}

	if h.mode == ModeTwiML {
		return h.twiml(c, reply.Text)
	}
	h.send(reply)
	return c.SendString("OK")
}

// readMessage extracts a Message from the provider's form fields. At most
// maxMedia attachment URLs are read whatever NumMedia claims.
func readMessage(value func(key string) string) Message {
	msg := Message{
		From: value("From"),
		Body: value("Body"),
	}
	if n, err := strconv.Atoi(value("NumMedia")); err == nil && n > 0 {
		msg.NumMedia = min(n, maxMedia)
		for i := 0; i < msg.NumMedia; i++ {
			if u := value(fmt.Sprintf("MediaUrl%d", i)); u != "" {
				msg.MediaURLs = append(msg.MediaURLs, u)
			}
		}
	}
	return msg
}

// send delivers reply through the notifier. Failures are logged only.
func (h *Handler) send(reply Reply) {
	if reply.To == "" || reply.Text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	err := h.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindReply,
		Destination: reply.To,
		Body:        reply.Text,
	})
	if err != nil {
		h.logger.Error("reply delivery failed", slog.String("identity", reply.To), slog.Any("error", err))
	}
}

func (h *Handler) twiml(c *fiber.Ctx, text string) error {
	out, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextXMLCharsetUTF8)
	return c.Send(append([]byte(xml.Header), out...))
}
