// Package gin adapts webhook verification to gin.
package gin

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
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

// WebhookHandler is the gin handler for webhook deliveries. The verified event is also stored
// in the context under EventKey for downstream middleware.
func WebhookHandler(verifier cryptopay.WebhookVerifier, handler cryptopay.WebhookHandlerFunc, opts ...Options) gin.HandlerFunc {
	options := &WebhookHandlerOptions{
		SignatureHeader: cryptopay.SignatureHeaderOf(verifier),
		MaxBodyBytes:    cryptopay.MaxWebhookBodyBytes,
		Logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, options.MaxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if !errors.As(err, &maxErr) {
				err = cryptopay.NewError(cryptopay.KindPayloadMalformed, "failed to read request body", err)
			}
			c.AbortWithStatusJSON(cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
			return
		}

		event, err := verifier.ParseWebhook(body, c.GetHeader(options.SignatureHeader))
		if err != nil {
			c.AbortWithStatusJSON(cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
			return
		}
		c.Set(EventKey, event)

		if err := handler(c.Request.Context(), event); err != nil {
			options.Logger.Error("webhook handler failed",
				zap.String("event", string(event.Event)),
				zap.String("payment_id", event.Payment.ID),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, cryptopay.WebhookResponseBody(err))
			return
		}

		c.JSON(http.StatusOK, cryptopay.WebhookResponseBody(nil))
	}
}

// EventKey is the gin context key holding the verified *cryptopay.WebhookEvent
const EventKey = "cryptopay.webhook_event"
