package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysRecursively(t *testing.T) {
	payload := map[string]any{
		"phoneNumber":    "255712345678",
		"amount":         "12000",
		"orderReference": "CRED1",
		"customer":       map[string]any{"z": 1, "a": []any{map[string]any{"b": 2, "a": 1}, 3}},
	}
	got, err := Canonicalize(payload)
	require.NoError(t, err)
	assert.Equal(t,
		`{"amount":"12000","customer":{"a":[{"a":1,"b":2},3],"z":1},"orderReference":"CRED1","phoneNumber":"255712345678"}`,
		string(got))
}

func TestCanonicalizeKeepsHTMLAndNumbers(t *testing.T) {
	got, err := Canonicalize(map[string]any{"note": "<a&b>", "n": 1.50, "big": 12000})
	require.NoError(t, err)
	assert.Equal(t, `{"big":12000,"n":1.5,"note":"<a&b>"}`, string(got))
}

func TestCanonicalizeStruct(t *testing.T) {
	type req struct {
		OrderReference string `json:"orderReference"`
		Amount         string `json:"amount"`
	}
	got, err := Canonicalize(req{OrderReference: "X1", Amount: "10"})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":"10","orderReference":"X1"}`, string(got))
}

func TestChecksumKeyOrderInvariant(t *testing.T) {
	a := map[string]any{"amount": "12000", "currency": "TZS", "orderReference": "CRED1", "phoneNumber": "255712345678"}
	b := map[string]any{"phoneNumber": "255712345678", "orderReference": "CRED1", "currency": "TZS", "amount": "12000"}

	sa, err := Checksum("secret", a)
	require.NoError(t, err)
	sb, err := Checksum("secret", b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	other, err := Checksum("other-secret", a)
	require.NoError(t, err)
	assert.NotEqual(t, sa, other)
}

func TestChecksumKnownVector(t *testing.T) {
	canonical := `{"amount":"1000","currency":"TZS","orderReference":"ORD1","phoneNumber":"255700000000"}`
	mac := hmac.New(sha256.New, []byte("k"))
	mac.Write([]byte(canonical))
	want := hex.EncodeToString(mac.Sum(nil))

	got, err := Checksum("k", map[string]any{
		"phoneNumber": "255700000000", "orderReference": "ORD1", "amount": "1000", "currency": "TZS",
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, 64)
}

func TestChecksumRejectsUnserializable(t *testing.T) {
	_, err := Checksum("k", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)

	_, err = Checksum("k", map[string]any{"n": math.NaN()})
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"eventType":"PAYMENT RECEIVED","orderReference":"CRED1"}`)
	sig := SignBody("whsec", body)

	assert.True(t, VerifySignature("whsec", body, sig))
	assert.False(t, VerifySignature("whsec", append(body, ' '), sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("whsec", body, "zz-not-hex"))
	assert.False(t, VerifySignature("whsec", body, ""))
	assert.False(t, VerifySignature("", body, sig))

	assert.True(t, VerifySignature("whsec", body, "sha256="+sig))
	assert.True(t, VerifySignature("whsec", body, " sha256="+sig+" "))
	assert.False(t, VerifySignature("whsec", body, "sha256="))
}
