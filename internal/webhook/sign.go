package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the two hex signatures carried in the
// X-Pagure-Signature and X-Pagure-Signature-256 headers, both keyed by
// the project's secret token and taken over the exact serialized body.
func Sign(secret string, body []byte) (sha1Hex, sha256Hex string) {
	mac1 := hmac.New(sha1.New, []byte(secret))
	mac1.Write(body)

	mac256 := hmac.New(sha256.New, []byte(secret))
	mac256.Write(body)

	return hex.EncodeToString(mac1.Sum(nil)), hex.EncodeToString(mac256.Sum(nil))
}
