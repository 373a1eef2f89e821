package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultClickPesaBaseURL = "https://api.clickpesa.com/third-parties"

type ClickPesaConfig struct {
	BaseURL        string
	ClientID       string
	APIKey         string
	ChecksumSecret string
	Timeout        time.Duration
	TokenTTL       time.Duration
}

// ClickPesaClient talks to the ClickPesa third-party API: USSD push collection,
// hosted card checkout, mobile-money payouts and account queries.
type ClickPesaClient struct {
	cfg    ClickPesaConfig
	tokens TokenCache
	client *http.Client
	log    *zap.Logger
	now    func() time.Time

	// OnRequest, when set, is called once per HTTP exchange with its outcome.
	OnRequest func(stage Stage, outcome string, elapsed time.Duration)
}

func NewClickPesaClient(cfg ClickPesaConfig, tokens TokenCache, logger *zap.Logger) *ClickPesaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultClickPesaBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickPesaClient{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{},
		log:    logger.Named("clickpesa"),
		now:    time.Now,
	}
}

type generateTokenResp struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// GetValidToken returns the cached token or fetches a new one.
func (c *ClickPesaClient) GetValidToken(ctx context.Context) (string, error) {
	tok, ok, err := c.tokens.Get(ctx)
	if err != nil {
		c.log.Warn("token cache unavailable", zap.Error(err))
	}
	if ok && tok.Valid(c.now()) {
		return tok.Value, nil
	}

	var out generateTokenResp
	headers := map[string]string{"client-id": c.cfg.ClientID, "api-key": c.cfg.APIKey}
	if err := c.exchange(ctx, StageAuth, http.MethodPost, "/generate-token", nil, nil, headers, &out); err != nil {
		return "", err
	}
	if !out.Success || out.Token == "" {
		return "", &GatewayError{Stage: StageAuth, Detail: "token not issued"}
	}
	value := out.Token
	if !strings.HasPrefix(value, "Bearer ") {
		value = "Bearer " + value
	}
	fresh := Token{Value: value, ExpiresAt: c.now().Add(c.cfg.TokenTTL)}
	if err := c.tokens.Set(ctx, fresh); err != nil {
		c.log.Warn("token cache write failed", zap.Error(err))
	}
	c.log.Debug("token refreshed", zap.Time("expires_at", fresh.ExpiresAt))
	return value, nil
}

// signed returns payload with its checksum field added.
func (c *ClickPesaClient) signed(stage Stage, payload map[string]any) (map[string]any, error) {
	sum, err := Checksum(c.cfg.ChecksumSecret, payload)
	if err != nil {
		return nil, &GatewayError{Stage: stage, Detail: "checksum", Err: err}
	}
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["checksum"] = sum
	return out, nil
}

func (c *ClickPesaClient) PreviewPayment(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*Preview, error) {
	body, err := c.signed(StagePreview, ussdPayload(phone, amount, orderRef))
	if err != nil {
		return nil, err
	}
	var out Preview
	if err := c.authorized(ctx, StagePreview, http.MethodPost, "/payments/preview-ussd-push-request", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ClickPesaClient) InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*Initiation, error) {
	body, err := c.signed(StageInitiate, ussdPayload(phone, amount, orderRef))
	if err != nil {
		return nil, err
	}
	var out Initiation
	if err := c.authorized(ctx, StageInitiate, http.MethodPost, "/payments/initiate-ussd-push-request", nil, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &GatewayError{Stage: StageInitiate, Detail: "response has no payment id"}
	}
	c.log.Info("ussd push initiated",
		zap.String("order_reference", orderRef),
		zap.String("payment_id", out.ID),
		zap.String("status", out.Status),
		zap.String("channel", out.Channel))
	return &out, nil
}

func (c *ClickPesaClient) PreviewCardPayment(ctx context.Context, amountUSD decimal.Decimal, orderRef string) (*Preview, error) {
	body, err := c.signed(StageCardPreview, map[string]any{
		"amount":         amountUSD.StringFixed(2),
		"currency":       "USD",
		"orderReference": orderRef,
	})
	if err != nil {
		return nil, err
	}
	var out Preview
	if err := c.authorized(ctx, StageCardPreview, http.MethodPost, "/payments/preview-card-payment", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ClickPesaClient) InitiateCardPayment(ctx context.Context, amountUSD decimal.Decimal, orderRef, customerID string) (*CardCheckout, error) {
	body, err := c.signed(StageCardInitiate, map[string]any{
		"amount":         amountUSD.StringFixed(2),
		"currency":       "USD",
		"orderReference": orderRef,
		"customer":       map[string]any{"id": customerID},
	})
	if err != nil {
		return nil, err
	}
	var out CardCheckout
	if err := c.authorized(ctx, StageCardInitiate, http.MethodPost, "/payments/initiate-card-payment", nil, body, &out); err != nil {
		return nil, err
	}
	if out.CardPaymentLink == "" {
		return nil, &GatewayError{Stage: StageCardInitiate, Detail: "response has no payment link"}
	}
	return &out, nil
}

func (c *ClickPesaClient) QueryStatus(ctx context.Context, orderRef string) ([]PaymentRecord, error) {
	var raw json.RawMessage
	q := url.Values{"orderReference": {orderRef}}
	if err := c.authorized(ctx, StageQuery, http.MethodGet, "/payments/query-all-payments", q, nil, &raw); err != nil {
		return nil, err
	}
	var records []PaymentRecord
	if err := decodeList(raw, &records); err != nil {
		return nil, &GatewayError{Stage: StageQuery, Detail: "invalid response", Err: err}
	}
	return records, nil
}

func (c *ClickPesaClient) GetBalance(ctx context.Context) ([]BalanceEntry, error) {
	var raw json.RawMessage
	if err := c.authorized(ctx, StageBalance, http.MethodGet, "/account/balance", nil, nil, &raw); err != nil {
		return nil, err
	}
	var entries []BalanceEntry
	if err := decodeList(raw, &entries); err != nil {
		return nil, &GatewayError{Stage: StageBalance, Detail: "invalid response", Err: err}
	}
	return entries, nil
}

func (c *ClickPesaClient) PreviewPayout(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*PayoutPreview, error) {
	body, err := c.signed(StagePayoutPreview, ussdPayload(phone, amount, orderRef))
	if err != nil {
		return nil, err
	}
	var out PayoutPreview
	if err := c.authorized(ctx, StagePayoutPreview, http.MethodPost, "/payouts/preview-mobile-money-payout", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ClickPesaClient) CreatePayout(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*PayoutResult, error) {
	body, err := c.signed(StagePayout, ussdPayload(phone, amount, orderRef))
	if err != nil {
		return nil, err
	}
	var out PayoutResult
	if err := c.authorized(ctx, StagePayout, http.MethodPost, "/payouts/create-mobile-money-payout", nil, body, &out); err != nil {
		return nil, err
	}
	c.log.Info("payout created",
		zap.String("order_reference", orderRef),
		zap.String("payout_id", out.ID),
		zap.String("status", out.Status))
	return &out, nil
}

func ussdPayload(phone string, amount decimal.Decimal, orderRef string) map[string]any {
	return map[string]any{
		"amount":         amount.String(),
		"currency":       "TZS",
		"orderReference": orderRef,
		"phoneNumber":    phone,
	}
}

// authorized performs a call that needs the bearer token. A 401 drops the
// cached token so the next call fetches a fresh one.
func (c *ClickPesaClient) authorized(ctx context.Context, stage Stage, method, path string, query url.Values, body any, out any) error {
	token, err := c.GetValidToken(ctx)
	if err != nil {
		return err
	}
	err = c.exchange(ctx, stage, method, path, query, body, map[string]string{"Authorization": token}, out)
	if ge, ok := err.(*GatewayError); ok && ge.StatusCode == http.StatusUnauthorized {
		if ierr := c.tokens.Invalidate(ctx); ierr != nil {
			c.log.Warn("token cache invalidate failed", zap.Error(ierr))
		}
	}
	return err
}

type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *ClickPesaClient) exchange(ctx context.Context, stage Stage, method, path string, query url.Values, body any, headers map[string]string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.OnRequest == nil {
			return
		}
		outcome := "ok"
		if ge, ok := err.(*GatewayError); ok {
			outcome = "error"
			if ge.Timeout {
				outcome = "timeout"
			}
		}
		c.OnRequest(stage, outcome, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, merr := json.Marshal(body)
		if merr != nil {
			return &GatewayError{Stage: stage, Detail: "encode request", Err: merr}
		}
		reader = bytes.NewReader(b)
	}
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &GatewayError{Stage: stage, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		timeout := isTimeout(err)
		c.log.Warn("request failed", zap.String("stage", string(stage)), zap.Bool("timeout", timeout), zap.Error(err))
		return &GatewayError{Stage: stage, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Stage: stage, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(respBody, &apiErr)
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Error
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("gateway rejected request",
			zap.String("stage", string(stage)),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return &GatewayError{Stage: stage, StatusCode: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{Stage: stage, StatusCode: resp.StatusCode, Detail: "invalid response", Err: err}
	}
	return nil
}

// decodeList accepts either a bare JSON array or an object wrapping it in "data".
func decodeList(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	if len(wrapped.Data) == 0 {
		return fmt.Errorf("no list in response")
	}
	return json.Unmarshal(wrapped.Data, out)
}
