package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	errMissingSignature = errors.New("missing x-signature header")
	errMissingSecret    = errors.New("webhook secret not configured")
	errMalformedHeader  = errors.New("malformed x-signature header")
	errSignatureExpired = errors.New("x-signature timestamp outside tolerance")
	errSignatureInvalid = errors.New("x-signature does not match")

	tsRegex = regexp.MustCompile(`ts=([^,]+)`)
	v1Regex = regexp.MustCompile(`v1=([^,]+)`)
)

// WebhookValidator validates Mercado Pago webhook signatures.
type WebhookValidator struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookValidator creates a new webhook validator. A zero tolerance
// disables the timestamp freshness check.
func NewWebhookValidator(secret string, tolerance time.Duration) *WebhookValidator {
	return &WebhookValidator{secret: secret, tolerance: tolerance, now: time.Now}
}

// ValidateSignature validates the x-signature header from Mercado Pago.
// See: https://www.mercadopago.com.ar/developers/es/docs/your-integrations/notifications/webhooks
//
// The x-signature header contains: ts=<timestamp>,v1=<signature>
// The signature is HMAC-SHA256 of: id:<data.id>;request-id:<x-request-id>;ts:<timestamp>;
func (v *WebhookValidator) ValidateSignature(xSignature, xRequestID, dataID string) error {
	if v.secret == "" {
		return errMissingSecret
	}
	if xSignature == "" {
		return errMissingSignature
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return errMalformedHeader
	}
	if err := v.checkFreshness(ts); err != nil {
		return err
	}

	manifest := buildManifest(strings.ToLower(dataID), xRequestID, ts)
	expectedHash := calculateHMAC(manifest, v.secret)

	if !hmac.Equal([]byte(strings.ToLower(hash)), []byte(expectedHash)) {
		return errSignatureInvalid
	}
	return nil
}

// checkFreshness accepts ts in seconds or milliseconds since epoch.
func (v *WebhookValidator) checkFreshness(ts string) error {
	if v.tolerance <= 0 {
		return nil
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errMalformedHeader
	}
	var sent time.Time
	if n > 1e12 {
		sent = time.UnixMilli(n)
	} else {
		sent = time.Unix(n, 0)
	}
	skew := v.now().Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return errSignatureExpired
	}
	return nil
}

// parseSignatureHeader extracts ts and v1 values from x-signature header.
func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsRegex.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Regex.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// buildManifest constructs the string to be signed.
func buildManifest(dataID, requestID, ts string) string {
	var parts []string

	if dataID != "" {
		parts = append(parts, "id:"+dataID)
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}

	return strings.Join(parts, ";") + ";"
}

// calculateHMAC computes HMAC-SHA256 of the manifest.
func calculateHMAC(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
