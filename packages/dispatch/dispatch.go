package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/correlator"
	"github.com/abdul-hamid-achik/callspec/packages/http"
)

const (
	DefaultCallbackTimeout = 10 * time.Second
	DefaultRequestTimeout  = http.DefaultTimeout
)

// TLSSource returns the mutual TLS material for a counterpart.
type TLSSource func(counterpart string) (*http.TLSMaterial, bool)

type Config struct {
	CallbackEndpoint     string
	CallbackTimeout      time.Duration
	RequestTimeout       time.Duration
	HostingEnabled       bool
	CounterpartEndpoints map[string]string
	MutualTLS            bool
	TLS                  TLSSource
	ValidateSSL          bool
	Proxy                string
	DefaultHeaders       map[string]string
	RateLimit            float64
}

// Call is one resolved request to send.
type Call struct {
	Counterpart     string
	URL             string
	Method          string
	Path            string
	QueryParams     map[string]string
	Headers         map[string]string
	Body            any
	SuccessCallback correlator.Endpoint
	ErrorCallback   correlator.Endpoint
	IgnoreCallbacks bool
}

func (c *Call) expectsCallback() bool {
	if c.IgnoreCallbacks {
		return false
	}
	return c.SuccessCallback.URL != "" && c.ErrorCallback.URL != ""
}

type Result struct {
	SyncResponse *plan.SyncResponse
	Callback     *plan.Callback
	CurlRequest  string
	Duration     time.Duration
}

type Option func(*Dispatcher)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithSigner(s http.Signer) Option {
	return func(d *Dispatcher) {
		d.signer = s
	}
}

type Dispatcher struct {
	cfg    Config
	broker *correlator.Broker
	signer http.Signer
	logger zerolog.Logger

	client *http.Client

	mu         sync.Mutex
	tlsClients map[string]*http.Client
}

func New(cfg Config, broker *correlator.Broker, opts ...Option) *Dispatcher {
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	d := &Dispatcher{
		cfg:        cfg,
		broker:     broker,
		signer:     http.NopSigner{},
		logger:     zerolog.Nop(),
		tlsClients: make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.client = http.NewClient(d.clientOptions()...)
	return d
}

func (d *Dispatcher) clientOptions(extra ...http.ClientOption) []http.ClientOption {
	opts := []http.ClientOption{
		http.WithTimeout(d.cfg.RequestTimeout),
		http.WithValidateSSL(d.cfg.ValidateSSL),
		http.WithDefaultHeaders(d.cfg.DefaultHeaders),
		http.WithRateLimit(d.cfg.RateLimit),
	}
	if d.cfg.Proxy != "" {
		opts = append(opts, http.WithProxy(d.cfg.Proxy))
	}
	return append(opts, extra...)
}

// IsolationKey scopes callback listeners. Counterparts are only told
// apart when hosting is enabled.
func (d *Dispatcher) IsolationKey(counterpart string) string {
	if d.cfg.HostingEnabled {
		return counterpart
	}
	return ""
}

// urlPrefix adds a scheme when missing and trims a trailing slash.
func urlPrefix(baseURL string) string {
	u := baseURL
	if !strings.HasPrefix(u, "http:") && !strings.HasPrefix(u, "https:") {
		u = "http://" + u
	}
	return strings.TrimSuffix(u, "/")
}

func (d *Dispatcher) baseURL(call *Call) string {
	base := d.cfg.CallbackEndpoint
	if d.cfg.HostingEnabled {
		if ep, ok := d.cfg.CounterpartEndpoints[call.Counterpart]; ok && call.Counterpart != "" {
			base = ep
		} else {
			d.logger.Warn().Str("counterpart", call.Counterpart).Msg("hosting is enabled but no endpoint is configured for counterpart")
		}
	}
	if call.URL != "" {
		base = call.URL
	}
	return urlPrefix(base)
}

func (d *Dispatcher) clientFor(counterpart string) (*http.Client, error) {
	if !d.cfg.MutualTLS {
		return d.client, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.tlsClients[counterpart]; ok {
		return c, nil
	}

	var material *http.TLSMaterial
	if d.cfg.TLS != nil {
		material, _ = d.cfg.TLS(counterpart)
	}
	if !material.Complete() {
		return nil, &ConfigurationError{Counterpart: counterpart, Reason: "outbound TLS is enabled, but there is no TLS config"}
	}
	tlsCfg, err := http.NewTLSConfig(material)
	if err != nil {
		return nil, &ConfigurationError{Counterpart: counterpart, Reason: err.Error()}
	}
	c := http.NewClient(d.clientOptions(http.WithTLSConfig(tlsCfg), http.WithValidateSSL(true))...)
	d.tlsClients[counterpart] = c
	return c, nil
}

// Send dispatches call and waits for its callback when one is expected.
// Every failure is an *Error.
func (d *Dispatcher) Send(ctx context.Context, call *Call) (*Result, error) {
	uniqueID := uuid.NewString()
	logger := d.logger.With().
		Str("uniqueId", uniqueID).
		Str("counterpart", call.Counterpart).
		Logger()

	client, err := d.clientFor(call.Counterpart)
	if err != nil {
		logger.Error().Err(err).Msg("cannot dispatch")
		return nil, &Error{Code: CodeTransport, Message: err.Error(), Err: err}
	}

	base := d.baseURL(call)
	if d.cfg.MutualTLS {
		base = strings.Replace(base, "http:", "https:", 1)
	}

	req := &http.Request{
		Method:      strings.ToUpper(call.Method),
		BaseURL:     base,
		Path:        call.Path,
		QueryParams: call.QueryParams,
		Headers:     copyHeaders(call.Headers),
		Body:        call.Body,
		Timeout:     d.cfg.RequestTimeout,
	}

	if err := d.signer.Sign(ctx, req); err != nil {
		logger.Error().Err(err).Msg("signing request")
	}

	result := &Result{CurlRequest: req.Curl()}

	var wait *correlator.Wait
	if call.expectsCallback() {
		wait = d.broker.Register(d.IsolationKey(call.Counterpart), call.SuccessCallback, call.ErrorCallback, d.cfg.CallbackTimeout)
	}

	logger.Info().Str("method", req.Method).Str("url", req.BuildURL()).Msg("sending request")

	resp, err := client.Send(ctx, req)
	if err != nil {
		if wait != nil {
			wait.Cancel(err)
		}
		logger.Error().Err(err).Str("method", req.Method).Msg("failed to send request")
		result.SyncResponse = &plan.SyncResponse{Status: 500, StatusText: err.Error()}
		return nil, &Error{Code: CodeTransport, Message: err.Error(), Result: result, Err: err}
	}

	result.Duration = resp.Duration
	result.SyncResponse = &plan.SyncResponse{
		Status:     resp.StatusCode,
		StatusText: resp.StatusText(),
		Headers:    resp.Headers,
		Body:       resp.DecodedBody(),
	}

	if !resp.IsSuccess() {
		if wait != nil {
			wait.Cancel(errors.Errorf("status %d", resp.StatusCode))
		}
		logger.Error().Int("status", resp.StatusCode).Str("statusText", resp.StatusText()).Msg("received error response")
		return nil, &Error{
			Message: resp.Status,
			Result:  result,
			Err:     errors.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	logger.Info().Int("status", resp.StatusCode).Str("statusText", resp.StatusText()).Msg("received response")

	if wait == nil {
		return result, nil
	}

	msg, err := wait.Wait(ctx)
	if msg != nil {
		result.Callback = &plan.Callback{
			Method:  msg.Method,
			URL:     msg.URL,
			Headers: msg.Headers,
			Body:    msg.Body,
		}
	}

	var cbErr *correlator.CallbackError
	switch {
	case err == nil:
		logger.Info().Str("url", msg.URL).Msg("received success callback")
		return result, nil
	case errors.Is(err, correlator.ErrTimeout):
		logger.Warn().Dur("timeout", d.cfg.CallbackTimeout).Msg("timeout for receiving callback")
		return nil, &Error{Code: CodeCallbackTimeout, Message: "Timeout for receiving callback", Result: result, Err: err}
	case errors.As(err, &cbErr):
		logger.Info().Str("url", msg.URL).Msg("received error callback")
		return nil, &Error{Message: "error callback received", Result: result, Err: err}
	default:
		return nil, &Error{Message: err.Error(), Result: result, Err: err}
	}
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
