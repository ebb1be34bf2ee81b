package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/princinho/agrorfq/services"
)

var _ services.PayoutService = (*PayoutClient)(nil)

// PayoutClient asks the wallet service to release funds held for an order.
// The wallet service keys payouts by tracking id, so repeating a call is safe.
type PayoutClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewPayoutClient(baseURL, token string) *PayoutClient {
	return &PayoutClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
}

type payoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProcessOrderPayout never returns an error; failures come back as a false
// result with the reason.
func (p *PayoutClient) ProcessOrderPayout(ctx context.Context, trackingID string) (bool, string) {
	if p == nil || p.baseURL == "" {
		return false, "payout service is not configured"
	}

	var out payoutResponse
	err := retry(ctx, p.maxAttempts, p.baseDelay, func() error {
		return p.post(ctx, "/orders/"+url.PathEscape(trackingID)+"/payout", &out)
	})
	if err != nil {
		return false, err.Error()
	}
	if out.Message == "" && out.Success {
		out.Message = "payout released"
	}
	return out.Success, out.Message
}

func (p *PayoutClient) post(ctx context.Context, path string, out *payoutResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, nil)
	if err != nil {
		return permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payout read body: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("payout service returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return permanent(fmt.Errorf("payout decode: %w", err))
	}
	if resp.StatusCode >= 400 && out.Message == "" {
		out.Message = fmt.Sprintf("payout service returned status %d", resp.StatusCode)
	}
	return nil
}
