package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/webhook/clickpesa", "200", 0.01)
	RecordHTTPRequest("POST", "/webhook/clickpesa", "200", 0.02)
	RecordHTTPRequest("POST", "/webhook/clickpesa", "401", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/webhook/clickpesa", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/webhook/clickpesa", "401")))
}

func TestRecordWebhookEvent(t *testing.T) {
	WebhookEventsTotal.Reset()

	RecordWebhookEvent("PAYMENT RECEIVED", "applied")
	RecordWebhookEvent("PAYMENT RECEIVED", "noop")

	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("PAYMENT RECEIVED", "applied")))
	assert.Equal(t, 2, testutil.CollectAndCount(WebhookEventsTotal))
}

func TestRecordCreditsGrantedIgnoresNonPositive(t *testing.T) {
	CreditsGrantedTotal.Reset()

	RecordCreditsGranted("purchase", 25)
	RecordCreditsGranted("purchase", 0)
	RecordCreditsGranted("purchase", -3)

	assert.Equal(t, float64(25), testutil.ToFloat64(CreditsGrantedTotal.WithLabelValues("purchase")))
}

func TestRecordPaymentCreated(t *testing.T) {
	PaymentsCreatedTotal.Reset()

	RecordPaymentCreated("mobile_money", "initiated")

	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentsCreatedTotal.WithLabelValues("mobile_money", "initiated")))
}

func TestRecordGatewayRequest(t *testing.T) {
	GatewayRequestDuration.Reset()

	RecordGatewayRequest("initiate", "timeout", 20)

	assert.Equal(t, 1, testutil.CollectAndCount(GatewayRequestDuration))
}
