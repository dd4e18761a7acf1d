package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "X-Paystack-Signature"

// CalculateSignature returns hex(HMAC-SHA512(body, secret))
func CalculateSignature(secretKey string, body []byte) string {
	h := hmac.New(sha512.New, []byte(secretKey))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature compares a webhook signature in constant time
func ValidateSignature(secretKey string, body []byte, signature string) bool {
	if secretKey == "" || signature == "" {
		return false
	}
	expected := CalculateSignature(secretKey, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
