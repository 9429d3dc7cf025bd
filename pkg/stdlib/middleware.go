// Package stdlib adapts webhook verification to net/http.
package stdlib

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

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

func newOptions(verifier cryptopay.WebhookVerifier, opts []Options) *WebhookHandlerOptions {
	options := &WebhookHandlerOptions{
		SignatureHeader: cryptopay.SignatureHeaderOf(verifier),
		MaxBodyBytes:    cryptopay.MaxWebhookBodyBytes,
		Logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WebhookHandler returns an http.Handler that verifies each delivery with verifier and passes
// the decoded event to handler. It answers 200 once handler succeeds, 401 for a bad signature,
// 400 for a malformed body, 413 for an oversized body and 500 when handler fails, so that the
// service retries the delivery.
func WebhookHandler(verifier cryptopay.WebhookVerifier, handler cryptopay.WebhookHandlerFunc, opts ...Options) http.Handler {
	options := newOptions(verifier, opts)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "method not allowed"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, options.MaxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if !errors.As(err, &maxErr) {
				err = cryptopay.NewError(cryptopay.KindPayloadMalformed, "failed to read request body", err)
			}
			writeJSON(w, cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
			return
		}

		event, err := verifier.ParseWebhook(body, r.Header.Get(options.SignatureHeader))
		if err != nil {
			writeJSON(w, cryptopay.WebhookStatusCode(err), cryptopay.WebhookResponseBody(err))
			return
		}

		if err := handler(r.Context(), event); err != nil {
			options.Logger.Error("webhook handler failed",
				zap.String("event", string(event.Event)),
				zap.String("payment_id", event.Payment.ID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, cryptopay.WebhookResponseBody(err))
			return
		}

		writeJSON(w, http.StatusOK, cryptopay.WebhookResponseBody(nil))
	})
}

// writeJSON writes body as JSON with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
