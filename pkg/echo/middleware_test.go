package echo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptopay "github.com/cryptopay/cryptopay-go"
	cphttp "github.com/cryptopay/cryptopay-go/http"
)

const (
	testSecret = "whsec_test"
	validBody  = `{"event":"payment.partially_paid","payment":{"id":"pay_2","status":"PARTIALLY_PAID","amount":"10","paidAmount":"4","currency":"USD"}}`
)

func serve(t *testing.T, handler echo.HandlerFunc, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set(cryptopay.DefaultSignatureHeader, signature)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func TestWebhookHandler(t *testing.T) {
	parser := cryptopay.NewWebhookParser(testSecret)
	sig := cryptopay.ComputeSignature([]byte(validBody), testSecret)

	var got *cryptopay.WebhookEvent
	ok := WebhookHandler(parser, func(ctx context.Context, event *cryptopay.WebhookEvent) error {
		got = event
		return nil
	})

	rec := serve(t, ok, validBody, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.NotNil(t, got)
	assert.True(t, cryptopay.IsPartiallyPaid(&got.Payment))

	rec = serve(t, ok, validBody, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	failing := WebhookHandler(parser, func(ctx context.Context, event *cryptopay.WebhookEvent) error {
		return errors.New("queue full")
	})
	rec = serve(t, failing, validBody, sig)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	small := WebhookHandler(parser, func(ctx context.Context, event *cryptopay.WebhookEvent) error {
		return nil
	}, WithMaxBodyBytes(4))
	rec = serve(t, small, validBody, sig)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookHandlerUsesClientSignatureHeader(t *testing.T) {
	client, err := cphttp.NewClient(cryptopay.Config{
		APIKey:          "cp_test_key",
		Environment:     cryptopay.EnvironmentSandbox,
		WebhookSecret:   testSecret,
		SignatureHeader: "X-Shop-Signature",
	})
	require.NoError(t, err)

	handler := WebhookHandler(client, func(ctx context.Context, event *cryptopay.WebhookEvent) error {
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(validBody))
	req.Header.Set("X-Shop-Signature", cryptopay.ComputeSignature([]byte(validBody), testSecret))
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
