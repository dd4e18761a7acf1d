package paystack

import (
	"testing"

	"github.com/kevin07696/bakery-service/test/mocks"
	"github.com/stretchr/testify/assert"
)

func TestCalculateSignature_KnownVector(t *testing.T) {
	sig := CalculateSignature("secret", []byte(`{"event":"charge.success"}`))
	assert.Len(t, sig, 128)
	assert.Equal(t, sig, CalculateSignature("secret", []byte(`{"event":"charge.success"}`)))
	assert.NotEqual(t, sig, CalculateSignature("other", []byte(`{"event":"charge.success"}`)))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	valid := CalculateSignature(testSecret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", testSecret, body, valid, true},
		{"tampered body", testSecret, []byte(`{"event":"charge.success","data":{"reference":"ref-2"}}`), valid, false},
		{"wrong secret", "sk_other", body, valid, false},
		{"empty signature", testSecret, body, "", false},
		{"empty secret", "", body, CalculateSignature("", body), false},
		{"uppercase hex", testSecret, body, upper(valid), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSignature(tt.secret, tt.body, tt.signature))
		})
	}
}

func TestAdapter_ValidateWebhookSignature(t *testing.T) {
	adapter := NewAdapter(Config{SecretKey: testSecret}, mocks.NewMockHTTPClient(nil), mocks.NewMockLogger())
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, adapter.ValidateWebhookSignature(body, CalculateSignature(testSecret, body)))
	assert.False(t, adapter.ValidateWebhookSignature(body, "deadbeef"))
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
