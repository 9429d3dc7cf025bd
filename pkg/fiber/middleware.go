// Package fiber adapts webhook verification to fiber.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

// WebhookHandlerOptions is the options for the WebhookHandler.
type WebhookHandlerOptions struct {
	SignatureHeader string
	MaxBodyBytes    int64
	Logger          *zap.Logger
}

// Options is the type for the options for the WebhookHandler.
type Options func(*WebhookHandlerOptions)

// WithSignatureHeader sets the header the signature is read from.
func WithSignatureHeader(header string) Options {
	return func(options *WebhookHandlerOptions) {
		options.SignatureHeader = header
	}
}

// WithMaxBodyBytes sets the largest body accepted. The fiber app's own BodyLimit applies first.
func WithMaxBodyBytes(n int64) Options {
	return func(options *WebhookHandlerOptions) {
		options.MaxBodyBytes = n
	}
}

// WithLogger sets the logger handler failures are reported to.
func WithLogger(logger *zap.Logger) Options {
	return func(options *WebhookHandlerOptions) {
		options.Logger = logger
	}
}

// WebhookHandler is the fiber handler for webhook deliveries.
func WebhookHandler(verifier cryptopay.WebhookVerifier, handler cryptopay.WebhookHandlerFunc, opts ...Options) fiber.Handler {
	options := &WebhookHandlerOptions{
		SignatureHeader: cryptopay.SignatureHeaderOf(verifier),
		MaxBodyBytes:    cryptopay.MaxWebhookBodyBytes,
		Logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *fiber.Ctx) error {
		if int64(len(c.Body())) > options.MaxBodyBytes {
			err := &http.MaxBytesError{Limit: options.MaxBodyBytes}
			return c.Status(cryptopay.WebhookStatusCode(err)).JSON(cryptopay.WebhookResponseBody(err))
		}

		// fasthttp reuses the request buffer once the handler returns
		body := append([]byte(nil), c.Body()...)

		event, err := verifier.ParseWebhook(body, c.Get(options.SignatureHeader))
		if err != nil {
			return c.Status(cryptopay.WebhookStatusCode(err)).JSON(cryptopay.WebhookResponseBody(err))
		}

		if err := handler(c.UserContext(), event); err != nil {
			options.Logger.Error("webhook handler failed",
				zap.String("event", string(event.Event)),
				zap.String("payment_id", event.Payment.ID),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(cryptopay.WebhookResponseBody(err))
		}

		return c.Status(fiber.StatusOK).JSON(cryptopay.WebhookResponseBody(nil))
	}
}
