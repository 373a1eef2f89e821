package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConvertTZSToUSD(t *testing.T) {
	rate := decimal.NewFromInt(2500)
	assert.Equal(t, "4.8", ConvertTZSToUSD(decimal.NewFromInt(12000), rate).String())
	assert.Equal(t, "1.33", ConvertTZSToUSD(decimal.NewFromInt(3333), rate).String())
	assert.True(t, ConvertTZSToUSD(decimal.NewFromInt(100), decimal.Zero).IsZero())
}

func TestRateSourceCachesLiveRate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"rates":{"USD":2650.5,"EUR":2900}}`))
	}))
	defer srv.Close()

	rs := NewRateSource(srv.URL, decimal.NewFromInt(2500), time.Hour, nil)
	rate, live := rs.USDRate(context.Background())
	assert.True(t, live)
	assert.Equal(t, "2650.5", rate.String())

	_, _ = rs.USDRate(context.Background())
	assert.Equal(t, int32(1), hits.Load())
}

func TestRateSourceFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rs := NewRateSource(srv.URL, decimal.NewFromInt(2500), time.Hour, nil)
	rate, live := rs.USDRate(context.Background())
	assert.False(t, live)
	assert.True(t, rate.Equal(decimal.NewFromInt(2500)))
}

type memRateStore struct{ rate decimal.Decimal }

func (m *memRateStore) LastUSDRate(context.Context) (decimal.Decimal, error) { return m.rate, nil }

func (m *memRateStore) SaveUSDRate(_ context.Context, rate decimal.Decimal) error {
	m.rate = rate
	return nil
}

func TestRateSourceFallsBackToStoredRate(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rates":{"USD":2650.5}}`))
	}))
	defer srv.Close()

	store := &memRateStore{}
	first := NewRateSource(srv.URL, decimal.NewFromInt(2500), time.Hour, nil).WithStore(store)
	_, live := first.USDRate(context.Background())
	assert.True(t, live)
	assert.Equal(t, "2650.5", store.rate.String())

	// a fresh process with the source down
	down.Store(true)
	second := NewRateSource(srv.URL, decimal.NewFromInt(2500), time.Hour, nil).WithStore(store)
	rate, live := second.USDRate(context.Background())
	assert.False(t, live)
	assert.Equal(t, "2650.5", rate.String())
}

func TestIntentMajorAmount(t *testing.T) {
	in := &Intent{Amount: 1299, Status: "succeeded"}
	assert.Equal(t, "12.99", in.MajorAmount().String())
	assert.True(t, in.Succeeded())
}
