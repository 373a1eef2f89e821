package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClickPesa struct {
	tokenCalls   atomic.Int32
	token        string
	lastBody     map[string]any
	lastAuth     string
	previewCode  int
	initiateWait time.Duration
}

func (f *fakeClickPesa) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate-token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if r.Header.Get("api-key") != "key" || r.Header.Get("client-id") != "cid" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": f.token})
	})
	mux.HandleFunc("/payments/preview-ussd-push-request", func(w http.ResponseWriter, r *http.Request) {
		f.capture(t, r)
		if f.previewCode != 0 {
			w.WriteHeader(f.previewCode)
			_, _ = w.Write([]byte(`{"message":"Invalid phone number"}`))
			return
		}
		_, _ = w.Write([]byte(`{"activeMethods":[{"name":"M-PESA","status":"AVAILABLE","fee":0},"TIGO-PESA"],"amount":"12000"}`))
	})
	mux.HandleFunc("/payments/initiate-ussd-push-request", func(w http.ResponseWriter, r *http.Request) {
		f.capture(t, r)
		if f.initiateWait > 0 {
			select {
			case <-r.Context().Done():
			case <-time.After(f.initiateWait):
			}
			return
		}
		_, _ = w.Write([]byte(`{"id":"PAY-1","status":"PROCESSING","channel":"M-PESA","orderReference":"CRED1","collectedAmount":"12000","collectedCurrency":"TZS"}`))
	})
	mux.HandleFunc("/payments/query-all-payments", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		assert.Equal(t, "CRED1", r.URL.Query().Get("orderReference"))
		_, _ = w.Write([]byte(`{"data":[{"id":"PAY-1","status":"SUCCESS","orderReference":"CRED1","collectedAmount":12000}]}`))
	})
	mux.HandleFunc("/account/balance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	})
	return mux
}

func (f *fakeClickPesa) capture(t *testing.T, r *http.Request) {
	f.lastAuth = r.Header.Get("Authorization")
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	f.lastBody = map[string]any{}
	require.NoError(t, json.Unmarshal(b, &f.lastBody))
}

func newTestClient(t *testing.T, f *fakeClickPesa) (*ClickPesaClient, *MemoryTokenCache) {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cache := NewMemoryTokenCache()
	c := NewClickPesaClient(ClickPesaConfig{
		BaseURL:        srv.URL,
		ClientID:       "cid",
		APIKey:         "key",
		ChecksumSecret: "sum-secret",
		Timeout:        2 * time.Second,
	}, cache, nil)
	return c, cache
}

func TestGetValidTokenCachesAndPrefixesBearer(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	tok, err := c.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", tok)

	_, err = c.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestGetValidTokenKeepsExistingBearer(t *testing.T) {
	f := &fakeClickPesa{token: "Bearer xyz"}
	c, _ := newTestClient(t, f)

	tok, err := c.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", tok)
}

func TestGetValidTokenRefreshesAfterExpiry(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.GetValidToken(context.Background())
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Second)
	_, err = c.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestGetValidTokenAuthFailure(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)
	c.cfg.APIKey = "wrong"

	_, err := c.GetValidToken(context.Background())
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, StageAuth, ge.Stage)
	assert.Equal(t, http.StatusUnauthorized, ge.StatusCode)
	assert.Equal(t, "invalid credentials", ge.Detail)
	assert.False(t, IsIndeterminate(err))
}

func TestPreviewPaymentSignsPayload(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)

	p, err := c.PreviewPayment(context.Background(), "255712345678", decimal.NewFromInt(12000), "CRED1")
	require.NoError(t, err)
	require.Len(t, p.ActiveMethods, 2)
	assert.Equal(t, "M-PESA", p.ActiveMethods[0].Name)
	assert.Equal(t, "TIGO-PESA", p.ActiveMethods[1].Name)

	assert.Equal(t, "Bearer abc", f.lastAuth)
	sum, ok := f.lastBody["checksum"].(string)
	require.True(t, ok)
	delete(f.lastBody, "checksum")
	want, err := Checksum("sum-secret", f.lastBody)
	require.NoError(t, err)
	assert.Equal(t, want, sum)
	assert.Equal(t, "12000", f.lastBody["amount"])
	assert.Equal(t, "TZS", f.lastBody["currency"])
}

func TestPreviewPaymentRejected(t *testing.T) {
	f := &fakeClickPesa{token: "abc", previewCode: http.StatusBadRequest}
	c, _ := newTestClient(t, f)

	_, err := c.PreviewPayment(context.Background(), "255712345678", decimal.NewFromInt(12000), "CRED1")
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, StagePreview, ge.Stage)
	assert.Equal(t, "Invalid phone number", ge.Detail)
	assert.False(t, ge.Timeout)
}

func TestInitiatePayment(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)

	var stages []Stage
	c.OnRequest = func(stage Stage, outcome string, _ time.Duration) {
		stages = append(stages, stage)
		assert.Equal(t, "ok", outcome)
	}

	got, err := c.InitiatePayment(context.Background(), "255712345678", decimal.NewFromInt(12000), "CRED1")
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", got.ID)
	assert.Equal(t, "PROCESSING", got.Status)
	assert.True(t, got.CollectedAmount.Equal(decimal.NewFromInt(12000)))
	assert.Equal(t, []Stage{StageAuth, StageInitiate}, stages)
}

func TestInitiatePaymentTimeoutIsIndeterminate(t *testing.T) {
	f := &fakeClickPesa{token: "abc", initiateWait: 2 * time.Second}
	c, _ := newTestClient(t, f)
	_, err := c.GetValidToken(context.Background())
	require.NoError(t, err)
	c.cfg.Timeout = 50 * time.Millisecond

	_, err = c.InitiatePayment(context.Background(), "255712345678", decimal.NewFromInt(12000), "CRED1")
	require.Error(t, err)
	assert.True(t, IsIndeterminate(err))
}

func TestGatewayErrorIndeterminate(t *testing.T) {
	cases := []struct {
		stage   Stage
		timeout bool
		want    bool
	}{
		{StageInitiate, true, true},
		{StagePayout, true, true},
		{StageInitiate, false, false},
		{StageAuth, true, false},
		{StagePreview, true, false},
		{StageCardInitiate, true, false},
		{StagePayoutPreview, true, false},
		{StageQuery, true, false},
	}
	for _, tc := range cases {
		ge := &GatewayError{Stage: tc.stage, Timeout: tc.timeout, Err: context.DeadlineExceeded}
		assert.Equal(t, tc.want, ge.Indeterminate(), "%s timeout=%v", tc.stage, tc.timeout)
		assert.Equal(t, tc.want, IsIndeterminate(fmt.Errorf("create payment: %w", ge)), "%s wrapped", tc.stage)
	}
	assert.False(t, IsIndeterminate(context.DeadlineExceeded))
}

func TestQueryStatusAcceptsWrappedList(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, _ := newTestClient(t, f)

	recs, err := c.QueryStatus(context.Background(), "CRED1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "SUCCESS", recs[0].Status)
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	f := &fakeClickPesa{token: "abc"}
	c, cache := newTestClient(t, f)

	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
	_, ok, _ := cache.Get(context.Background())
	assert.False(t, ok)
}

func TestDecodeList(t *testing.T) {
	var out []BalanceEntry
	require.NoError(t, decodeList([]byte(`[{"currency":"TZS","balance":500}]`), &out))
	assert.Len(t, out, 1)

	assert.Error(t, decodeList([]byte(`{"message":"nothing"}`), &out))
}
