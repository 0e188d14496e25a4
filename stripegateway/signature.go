package stripegateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how far a webhook timestamp may drift from the local
// clock before the signature is rejected, matching the provider's default.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignatureHeader is returned when the signature header cannot be parsed.
	ErrInvalidSignatureHeader = errors.New("invalid signature header")

	// ErrSignatureMismatch is returned when no signature in the header matches the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrTimestampOutsideTolerance is returned when the signed timestamp is too old or too far ahead.
	ErrTimestampOutsideTolerance = errors.New("signature timestamp outside tolerance")
)

// VerifySignature checks a webhook payload against its signature header.
//
// The header format is `t=<unix>,v1=<hex hmac>[,v1=<hex hmac>...]` and the
// signed payload is `<unix>.<raw body>`, HMAC-SHA256 under the endpoint
// secret. Multiple v1 entries occur during secret rotation; any match passes.
// Comparison is constant-time.
func VerifySignature(payload []byte, sigHeader string, secret string, tolerance time.Duration, now time.Time) error {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return err
	}

	signedAt := time.Unix(timestamp, 0)
	drift := now.Sub(signedAt)
	if drift < 0 {
		drift = -drift
	}
	if tolerance > 0 && drift > tolerance {
		return ErrTimestampOutsideTolerance
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, signature := range signatures {
		decoded, decodeErr := hex.DecodeString(signature)
		if decodeErr != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

// ComputeSignatureHeader builds a valid signature header for the payload.
// Used by tests and local tooling to simulate provider deliveries.
func ComputeSignatureHeader(payload []byte, secret string, signedAt time.Time) string {
	timestamp := strconv.FormatInt(signedAt.Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)

	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(sigHeader string) (int64, []string, error) {
	if sigHeader == "" {
		return 0, nil, ErrInvalidSignatureHeader
	}

	var timestamp int64
	var haveTimestamp bool
	var signatures []string

	for _, pair := range strings.Split(sigHeader, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return 0, nil, ErrInvalidSignatureHeader
		}

		switch parts[0] {
		case "t":
			parsed, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidSignatureHeader
			}
			timestamp = parsed
			haveTimestamp = true
		case "v1":
			signatures = append(signatures, parts[1])
		default:
			// Unknown schemes (v0 etc.) are ignored.
		}
	}

	if !haveTimestamp || len(signatures) == 0 {
		return 0, nil, ErrInvalidSignatureHeader
	}

	return timestamp, signatures, nil
}
