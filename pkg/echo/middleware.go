// Package echo adapts webhook verification to echo.
package echo

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
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

// WithMaxBodyBytes sets the largest body accepted.
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

// WebhookHandler is the echo handler for webhook deliveries.
// Responses are written directly; the returned error is only non-nil if writing fails.
func WebhookHandler(verifier cryptopay.WebhookVerifier, handler cryptopay.WebhookHandlerFunc, opts ...Options) echo.HandlerFunc {
	options := &WebhookHandlerOptions{
		SignatureHeader: cryptopay.SignatureHeaderOf(verifier),
		MaxBodyBytes:    cryptopay.MaxWebhookBodyBytes,
		Logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(c echo.Context) error {
		req := c.Request()
		body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, options.MaxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if !errors.As(err, &maxErr) {
				err = cryptopay.NewError(cryptopay.KindPayloadMalformed, "failed to read request body", err)
			}
			return c.JSON(cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
		}

		event, err := verifier.ParseWebhook(body, req.Header.Get(options.SignatureHeader))
		if err != nil {
			return c.JSON(cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
		}

		if err := handler(req.Context(), event); err != nil {
			options.Logger.Error("webhook handler failed",
				zap.String("event", string(event.Event)),
				zap.String("payment_id", event.Payment.ID),
				zap.Error(err),
			)
			return c.JSON(http.StatusInternalServerError, cryptopay.WebhookResponseBody(err))
		}

		return c.JSON(http.StatusOK, cryptopay.WebhookResponseBody(nil))
	}
}
