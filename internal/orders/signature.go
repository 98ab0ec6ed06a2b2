package orders

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
)

// SignatureVerifier checks the integrity hash of gateway callback parameters.
type SignatureVerifier interface {
	Verify(params url.Values) bool
}

// HMACVerifier implements the gateway's HMAC-SHA512 scheme: every vnp_*
// parameter except the hash fields, sorted by key and query-encoded.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign returns the hex digest for params.
func (v *HMACVerifier) Sign(params url.Values) string {
	signed := url.Values{}
	for k, vals := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		signed.Set(k, vals[0])
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(signed.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(params url.Values) bool {
	got := strings.ToLower(params.Get("vnp_SecureHash"))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(v.Sign(params)))
}
