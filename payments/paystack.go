package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/princinho/agrorfq/services"
)

var _ services.PaymentGateway = (*PaystackClient)(nil)

const DefaultPaystackBaseURL = "https://api.paystack.co"

// PaystackClient is a minimal client for the two Paystack transaction endpoints we use.
type PaystackClient struct {
	baseURL     string
	secretKey   string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

type PaystackOption func(*PaystackClient)

func WithHTTPClient(c *http.Client) PaystackOption {
	return func(p *PaystackClient) { p.httpClient = c }
}

// WithVerifyRetry sets how often a failed verification is retried. Only
// verification is retried; initialisation creates a transaction each call.
func WithVerifyRetry(maxAttempts int, baseDelay time.Duration) PaystackOption {
	return func(p *PaystackClient) {
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
	}
}

func NewPaystackClient(baseURL, secretKey string, opts ...PaystackOption) *PaystackClient {
	if baseURL == "" {
		baseURL = DefaultPaystackBaseURL
	}
	p := &PaystackClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string         `json:"email"`
	Amount      string         `json:"amount"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// ====== POST /transaction/initialize ====

func (p *PaystackClient) Initialize(ctx context.Context, params services.InitializeParams) (*services.InitializeResult, error) {
	body, err := json.Marshal(initializeRequest{
		Email:       params.Email,
		Amount:      strconv.FormatInt(params.AmountMinor, 10),
		CallbackURL: params.CallbackURL,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode initialize request: %w", err)
	}

	var data initializeData
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if data.Reference == "" || data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize: incomplete response")
	}
	return &services.InitializeResult{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

// ====== GET /transaction/verify/:reference ====

func (p *PaystackClient) Verify(ctx context.Context, reference string) (*services.Verification, error) {
	var data verifyData
	err := retry(ctx, p.maxAttempts, p.baseDelay, func() error {
		return p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data)
	})
	if err != nil {
		return nil, err
	}
	if data.Reference == "" {
		data.Reference = reference
	}
	return &services.Verification{
		Reference:   data.Reference,
		Status:      data.Status,
		AmountMinor: data.Amount,
		Currency:    data.Currency,
	}, nil
}

// do performs one call. Client errors are wrapped as permanent so retry gives up on them.
func (p *PaystackClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paystack %s: read body: %w", path, err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("paystack %s: status %d", path, resp.StatusCode)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return permanent(fmt.Errorf("paystack %s: %s (status %d)", path, http.StatusText(resp.StatusCode), resp.StatusCode))
		}
		return permanent(fmt.Errorf("paystack %s: decode response (status %d): %w", path, resp.StatusCode, err))
	}
	if resp.StatusCode >= 400 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return permanent(fmt.Errorf("paystack %s: %s (status %d)", path, msg, resp.StatusCode))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return permanent(fmt.Errorf("paystack %s: decode data: %w", path, err))
	}
	return nil
}
