package ledger

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/identity"
)

// HandlerConfig carries the webhook settings the handler needs from config.
type HandlerConfig struct {
	Secret          string
	SignatureHeader string
	PeriodDays      int
	Region          string
}

// Handler exposes the payment webhook and the admin record endpoints.
type Handler struct {
	ledger *Ledger
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler constructs a ledger handler.
func NewHandler(l *Ledger, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Payment-Signature"
	}
	return &Handler{ledger: l, cfg: cfg, logger: logger}
}

// PaymentWebhook verifies a processor callback and applies credited payments.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	payload, err := formValues(c)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}

	signature := c.Get(h.cfg.SignatureHeader)
	if signature == "" {
		signature = payload.Get(SignatureField)
	}

	rec, err := h.ledger.VerifyAndApply(c.UserContext(), payload, signature, h.cfg.Secret, h.cfg.PeriodDays)
	if err != nil {
		var verr *VerificationError
		switch {
		case errors.As(err, &verr):
			h.logger.Warn("payment webhook rejected", slog.String("reason", verr.Reason.Error()), slog.String("ip", c.IP()))
			return fiber.NewError(http.StatusBadRequest, "Signature mismatch")
		case errors.Is(err, ErrDuplicatePayment):
			h.logger.Info("duplicate payment delivery", slog.String("identity", rec.Identity))
			return c.SendString("OK")
		case errors.Is(err, ErrPaymentNotCredited):
			h.logger.Info("payment webhook ignored", slog.String("status", payload.Get("status")))
			return c.SendString("OK")
		case errors.Is(err, identity.ErrInvalidIdentity):
			return fiber.NewError(http.StatusBadRequest, "invalid buyer phone")
		default:
			h.logger.Error("payment webhook failed", slog.Any("error", err))
			return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
		}
	}
	return c.SendString("OK")
}

type userResponse struct {
	UserRecord
	Effective State `json:"effective_state"`
	Active    bool  `json:"active"`
}

type overrideRequest struct {
	State           State      `json:"state"`
	SubscribedUntil *time.Time `json:"subscribed_until"`
	PendingUntil    *time.Time `json:"pending_until"`
}

// GetUser returns the stored record with its effective state.
func (h *Handler) GetUser(c *fiber.Ctx) error {
	id, err := h.identityParam(c)
	if err != nil {
		return err
	}
	rec, err := h.ledger.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(h.present(rec))
}

// PutUser manually sets the subscription state of a record, creating it if needed.
func (h *Handler) PutUser(c *fiber.Ctx) error {
	id, err := h.identityParam(c)
	if err != nil {
		return err
	}
	var req overrideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	saved, err := h.ledger.Override(c.UserContext(), id, StateOverride{
		State:           req.State,
		SubscribedUntil: req.SubscribedUntil,
		PendingUntil:    req.PendingUntil,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOverride) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	h.logger.Info("ledger record overridden", slog.String("identity", id), slog.String("state", string(saved.State)))
	return c.JSON(h.present(saved))
}

// DeleteUser removes a record.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id, err := h.identityParam(c)
	if err != nil {
		return err
	}
	if err := h.ledger.Delete(c.UserContext(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	h.logger.Info("ledger record deleted", slog.String("identity", id))
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) present(rec UserRecord) userResponse {
	now := h.ledger.Now()
	return userResponse{UserRecord: rec, Effective: rec.Status(now), Active: rec.Active(now)}
}

func (h *Handler) identityParam(c *fiber.Ctx) (string, error) {
	raw, err := url.PathUnescape(c.Params("identity"))
	if err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid identity")
	}
	id, err := identity.Normalize(raw, h.cfg.Region)
	if err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid identity")
	}
	return id, nil
}

// formValues reads an urlencoded or multipart form body into url.Values.
func formValues(c *fiber.Ctx) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
	if strings.HasPrefix(mediaType, "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		return url.Values(form.Value), nil
	}
	return url.ParseQuery(string(c.Body()))
}
