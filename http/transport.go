package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

// ============================================================================
// HTTP Transport
// ============================================================================

// Transport talks to the payment service REST API over HTTP.
// It implements cryptopay.Transport and is safe for concurrent use.
type Transport struct {
	baseURL        string
	apiKey         string
	userAgent      string
	httpClient     *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *zap.Logger
	tracer         trace.Tracer
}

var _ cryptopay.Transport = (*Transport)(nil)

// API key header
const APIKeyHeader = "X-API-Key"

// DefaultUserAgent identifies this library to the service
const DefaultUserAgent = "cryptopay-go/1"

// DefaultMaxRetries is the number of retries after the first attempt for retryable responses
const DefaultMaxRetries = 3

// DefaultRetryBaseDelay is the base delay for exponential backoff between retries
const DefaultRetryBaseDelay = 500 * time.Millisecond

// maxRetryDelay caps the exponential backoff between retries. A longer Retry-After is still honored.
const maxRetryDelay = 30 * time.Second

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 10 << 20

// Route templates, used for span names and logs
const (
	routeCreatePayment = "/v1/payments"
	routeGetPayment    = "/v1/payments/{id}"
	routeBalance       = "/v1/balance"
	routeWithdrawals   = "/v1/withdrawals"
)

// NewTransport creates an HTTP transport from config. The config is validated and defaulted;
// the base URL must be an absolute http(s) URL.
func NewTransport(config cryptopay.Config, opts ...Option) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	u, err := url.Parse(config.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &cryptopay.Error{
			Kind:    cryptopay.KindConfiguration,
			Message: fmt.Sprintf("base URL %q must be an absolute http(s) URL", config.BaseURL),
			Field:   "baseUrl",
			Err:     err,
		}
	}

	o := newOptions(opts)

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Transport{
		baseURL:        config.BaseURL,
		apiKey:         config.APIKey,
		userAgent:      o.userAgent,
		httpClient:     httpClient,
		maxRetries:     o.maxRetries,
		retryBaseDelay: o.retryBaseDelay,
		logger:         o.logger,
		tracer:         tp.Tracer(cryptopay.InstrumentationName + "/http"),
	}, nil
}

// ============================================================================
// cryptopay.Transport Implementation
// ============================================================================

// CreatePayment submits a payment request. A non-empty idempotencyKey is sent in the
// Idempotency-Key header unmodified and makes the request safe to retry.
func (t *Transport) CreatePayment(ctx context.Context, req cryptopay.CreatePaymentRequest, idempotencyKey string) (*cryptopay.Payment, error) {
	var payment cryptopay.Payment
	if err := t.do(ctx, http.MethodPost, routeCreatePayment, "/v1/payments", req, idempotencyKey, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayment fetches the current state of a payment
func (t *Transport) GetPayment(ctx context.Context, id string) (*cryptopay.Payment, error) {
	var payment cryptopay.Payment
	path := "/v1/payments/" + url.PathEscape(id)
	if err := t.do(ctx, http.MethodGet, routeGetPayment, path, nil, "", &payment); err != nil {
		return nil, err
	}
	if payment.ID == "" || payment.Status == "" {
		return nil, &cryptopay.Error{
			Kind:      cryptopay.KindPayloadMalformed,
			Message:   "payment response is missing id or status",
			PaymentID: id,
		}
	}
	return &payment, nil
}

// GetBalance fetches merchant balances on chain
func (t *Transport) GetBalance(ctx context.Context, chain cryptopay.Chain) (*cryptopay.MerchantBalance, error) {
	var balance cryptopay.MerchantBalance
	path := routeBalance + "?" + url.Values{"chain": {string(chain)}}.Encode()
	if err := t.do(ctx, http.MethodGet, routeBalance, path, nil, "", &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RequestWithdrawal submits a withdrawal request
func (t *Transport) RequestWithdrawal(ctx context.Context, req cryptopay.WithdrawalRequest, idempotencyKey string) (*cryptopay.Withdrawal, error) {
	var withdrawal cryptopay.Withdrawal
	if err := t.do(ctx, http.MethodPost, routeWithdrawals, routeWithdrawals, req, idempotencyKey, &withdrawal); err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// ============================================================================
// Internal HTTP Methods
// ============================================================================

// do performs a request, retrying retryable responses with exponential backoff.
// GETs are always retried; POSTs only when they carry an idempotency key.
func (t *Transport) do(ctx context.Context, method, route, path string, in interface{}, idempotencyKey string, out interface{}) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &cryptopay.Error{
				Kind:    cryptopay.KindValidation,
				Message: fmt.Sprintf("failed to encode %s %s request", method, route),
				Err:     err,
			}
		}
		body = b
	}

	canRetry := method == http.MethodGet || idempotencyKey != ""

	for attempt := 0; ; attempt++ {
		responseBody, err := t.roundTrip(ctx, method, route, path, body, idempotencyKey, attempt)
		if err == nil {
			if err := json.Unmarshal(responseBody, out); err != nil {
				return &cryptopay.Error{
					Kind:    cryptopay.KindPayloadMalformed,
					Message: fmt.Sprintf("failed to decode %s %s response", method, route),
					Err:     err,
				}
			}
			return nil
		}

		if !canRetry || attempt >= t.maxRetries || !retryableResponse(err) {
			return err
		}

		delay := backoffDelay(t.retryBaseDelay, attempt)
		if after := retryAfter(err); after > delay {
			delay = after
		}
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			t.logger.Debug("not retrying; delay exceeds context deadline",
				zap.String("method", method),
				zap.String("route", route),
				zap.Duration("delay", delay),
			)
			return err
		}
		t.logger.Debug("retrying request",
			zap.String("method", method),
			zap.String("route", route),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return cancelledError(ctx.Err())
		}
	}
}

// roundTrip sends one request and returns the body of a 2xx response, or a typed error
func (t *Transport) roundTrip(ctx context.Context, method, route, path string, body []byte, idempotencyKey string, attempt int) ([]byte, error) {
	ctx, span := t.tracer.Start(ctx, "cryptopay.http "+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.request.resend_count", attempt),
			attribute.Bool("cryptopay.idempotent", idempotencyKey != ""),
		),
	)
	defer span.End()

	fail := func(err error) ([]byte, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(cryptopay.KindOf(err)))
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fail(&cryptopay.Error{
			Kind:    cryptopay.KindConfiguration,
			Message: fmt.Sprintf("failed to create %s %s request", method, route),
			Err:     err,
		})
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(APIKeyHeader, t.apiKey)
	req.Header.Set("User-Agent", t.userAgent)
	if idempotencyKey != "" {
		req.Header.Set(cryptopay.IdempotencyKeyHeader, idempotencyKey)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fail(transportError(ctx, method, route, err))
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(transportError(ctx, method, route, err))
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	t.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("route", route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(statusError(resp, responseBody))
	}
	span.SetStatus(codes.Ok, "")
	return responseBody, nil
}

// ============================================================================
// Error Mapping
// ============================================================================

// apiErrorBody is the error envelope returned by the service. The flat form
// {"message": ..., "field": ...} is accepted as well.
type apiErrorBody struct {
	Err *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Field   string                 `json:"field"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func statusError(resp *http.Response, body []byte) *cryptopay.Error {
	e := &cryptopay.Error{
		Kind:       kindForStatus(resp.StatusCode),
		HTTPStatus: resp.StatusCode,
	}

	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Err != nil {
			e.Message = parsed.Err.Message
			e.Field = parsed.Err.Field
			e.Details = parsed.Err.Details
			if parsed.Err.Code != "" {
				if e.Details == nil {
					e.Details = map[string]interface{}{}
				}
				e.Details["code"] = parsed.Err.Code
			}
		} else {
			e.Message = parsed.Message
			e.Field = parsed.Field
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("service returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			if e.Details == nil {
				e.Details = map[string]interface{}{}
			}
			e.Details["retryAfter"] = time.Duration(seconds) * time.Second
		}
	}
	return e
}

func kindForStatus(status int) cryptopay.ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return cryptopay.KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return cryptopay.KindAuthentication
	case status == http.StatusNotFound:
		return cryptopay.KindNotFound
	case status == http.StatusConflict:
		return cryptopay.KindConflict
	case status == http.StatusTooManyRequests:
		return cryptopay.KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return cryptopay.KindTimeout
	case status >= 500:
		return cryptopay.KindServer
	default:
		return cryptopay.KindValidation
	}
}

// transportError classifies a failure to complete the round-trip
func transportError(ctx context.Context, method, route string, err error) *cryptopay.Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelledError(ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &cryptopay.Error{
			Kind:    cryptopay.KindTimeout,
			Message: fmt.Sprintf("%s %s timed out", method, route),
			Err:     err,
		}
	}
	return &cryptopay.Error{
		Kind:    cryptopay.KindNetwork,
		Message: fmt.Sprintf("%s %s failed", method, route),
		Err:     err,
	}
}

func cancelledError(cause error) *cryptopay.Error {
	return &cryptopay.Error{
		Kind:    cryptopay.KindCancelled,
		Message: "request cancelled",
		Err:     cause,
	}
}

// retryableResponse reports whether err is a 429, 502, 503 or 504 response
func retryableResponse(err error) bool {
	var e *cryptopay.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.HTTPStatus {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoffDelay returns base·2^attempt, capped at maxRetryDelay
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 32 || base > maxRetryDelay>>uint(attempt) {
		return maxRetryDelay
	}
	return base << uint(attempt)
}

func retryAfter(err error) time.Duration {
	var e *cryptopay.Error
	if errors.As(err, &e) && e.Details != nil {
		if d, ok := e.Details["retryAfter"].(time.Duration); ok {
			return d
		}
	}
	return 0
}
