package ledgerclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	statePath    = "/state"
	transferPath = "/transfer"
	provePath    = "/prove"
	submitPath   = "/submit"
)

// Options configures the wallet bridge client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	ProveTimeout   time.Duration
	PollInterval   time.Duration
}

// Client implements port.LedgerClient against the wallet bridge HTTP API,
// which fronts the wallet SDK, the indexer and the proof server.
type Client struct {
	http           *fasthttp.Client
	baseURL        string
	requestTimeout time.Duration
	proveTimeout   time.Duration
	pollInterval   time.Duration
	logger         port.Logger
}

var _ port.LedgerClient = (*Client)(nil)

// New creates a wallet bridge client.
func New(opts Options, l port.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.ProveTimeout <= 0 {
		opts.ProveTimeout = 3 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Client{
		http:           &fasthttp.Client{Name: "wallet-tracker"},
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		requestTimeout: opts.RequestTimeout,
		proveTimeout:   opts.ProveTimeout,
		pollInterval:   opts.PollInterval,
		logger:         l.With("component", "LedgerClient"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type transferRequest struct {
	Outputs []entity.TransferOutput `json:"outputs"`
}

type submitResponse struct {
	TxIdentifier string `json:"txIdentifier"`
}

// Subscribe returns a stream that polls the bridge state endpoint.
func (c *Client) Subscribe(ctx context.Context) (port.StateStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pollingStream{
		client:  c,
		limiter: rate.NewLimiter(rate.Every(c.pollInterval), 1),
	}, nil
}

// FetchState reads the current wallet state once.
func (c *Client) FetchState(ctx context.Context) (*entity.StateSnapshot, error) {
	var snapshot entity.StateSnapshot
	if err := c.do(ctx, fasthttp.MethodGet, statePath, nil, &snapshot, c.requestTimeout); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// TransferTransaction asks the bridge to build an unproven transfer.
func (c *Client) TransferTransaction(ctx context.Context, outputs []entity.TransferOutput) (*entity.TransferRecipe, error) {
	var recipe entity.TransferRecipe
	if err := c.do(ctx, fasthttp.MethodPost, transferPath, transferRequest{Outputs: outputs}, &recipe, c.requestTimeout); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ProveTransaction asks the bridge to prove a recipe. Proving is slow; it uses the prove timeout.
func (c *Client) ProveTransaction(ctx context.Context, recipe *entity.TransferRecipe) (*entity.ProvenTransaction, error) {
	if recipe == nil {
		return nil, errors.New("nil transfer recipe")
	}
	var proven entity.ProvenTransaction
	if err := c.do(ctx, fasthttp.MethodPost, provePath, recipe, &proven, c.proveTimeout); err != nil {
		return nil, err
	}
	return &proven, nil
}

// SubmitTransaction submits a proven transaction and returns its identifier.
func (c *Client) SubmitTransaction(ctx context.Context, tx *entity.ProvenTransaction) (string, error) {
	if tx == nil {
		return "", errors.New("nil proven transaction")
	}
	var resp submitResponse
	if err := c.do(ctx, fasthttp.MethodPost, submitPath, tx, &resp, c.requestTimeout); err != nil {
		return "", err
	}
	if resp.TxIdentifier == "" {
		return "", errors.New("bridge returned an empty transaction identifier")
	}
	return resp.TxIdentifier, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	requestURL := c.baseURL + path

	req := fasthttp.AcquireRequest()
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			return fmt.Errorf("failed to encode request to %s: %w", requestURL, err)
		}
		req.SetBodyRaw(payload)
	}
	resp := fasthttp.AcquireResponse()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// fasthttp has no context support; the request runs aside so cancellation returns at once.
	// req and resp are released by whoever observes the request finish.
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- c.http.DoDeadline(req, resp, deadline)
	}()

	var err error
	select {
	case err = <-doneCh:
	case <-ctx.Done():
		go func() {
			<-doneCh
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		c.logger.Debug("Bridge request abandoned", "url", requestURL, "error", ctx.Err())
		return fmt.Errorf("request to %s cancelled: %w", requestURL, ctx.Err())
	}
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	if err != nil {
		c.logger.Debug("Bridge request failed", "url", requestURL, "error", err)
		return fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}

	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		var apiErr errorResponse
		if err := json.Unmarshal(rawBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("bridge %s %s failed with status %d: %s", method, path, resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("bridge %s %s failed with status %d: %s", method, path, resp.StatusCode(), string(rawBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", requestURL, err)
	}
	return nil
}

// pollingStream turns the state endpoint into a stream, one poll per interval.
type pollingStream struct {
	client  *Client
	limiter *rate.Limiter
}

func (s *pollingStream) Next(ctx context.Context) (*entity.StateSnapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.client.FetchState(ctx)
}

func (s *pollingStream) Close() error {
	return nil
}
