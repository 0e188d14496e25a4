package stripegateway

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_VerifySignature_ValidSignature(t *testing.T) {
	// arrange
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test_secret"
	now := time.Now()
	header := ComputeSignatureHeader(payload, secret, now)

	// act
	err := VerifySignature(payload, header, secret, DefaultTolerance, now)

	// assert
	assert.NoError(t, err)
}

func Test_VerifySignature_WrongSecret(t *testing.T) {
	// arrange
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := ComputeSignatureHeader(payload, "whsec_other_secret", now)

	// act
	err := VerifySignature(payload, header, "whsec_test_secret", DefaultTolerance, now)

	// assert
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func Test_VerifySignature_TamperedPayload(t *testing.T) {
	// arrange
	secret := "whsec_test_secret"
	now := time.Now()
	header := ComputeSignatureHeader([]byte(`{"amount":100}`), secret, now)

	// act
	err := VerifySignature([]byte(`{"amount":999}`), header, secret, DefaultTolerance, now)

	// assert
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func Test_VerifySignature_StaleTimestamp(t *testing.T) {
	// arrange
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test_secret"
	now := time.Now()
	header := ComputeSignatureHeader(payload, secret, now.Add(-10*time.Minute))

	// act
	err := VerifySignature(payload, header, secret, 5*time.Minute, now)

	// assert
	assert.ErrorIs(t, err, ErrTimestampOutsideTolerance)
}

func Test_VerifySignature_SecondRotatedSignatureMatches(t *testing.T) {
	// arrange
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	staleHeader := ComputeSignatureHeader(payload, "whsec_old_secret", now)
	freshHeader := ComputeSignatureHeader(payload, "whsec_new_secret", now)
	// During rotation the provider sends one v1 per active secret.
	combined := staleHeader + "," + freshHeader[strings.Index(freshHeader, "v1="):]

	// act
	err := VerifySignature(payload, combined, "whsec_new_secret", DefaultTolerance, now)

	// assert
	assert.NoError(t, err)
}

func Test_VerifySignature_MalformedHeaders(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	testCases := []struct {
		name   string
		header string
	}{
		{name: "empty header", header: ""},
		{name: "no timestamp", header: "v1=abcdef"},
		{name: "no signature", header: "t=1700000000"},
		{name: "garbage pair", header: "t=1700000000,v1"},
		{name: "non numeric timestamp", header: "t=notanumber,v1=abcdef"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifySignature(payload, tc.header, "whsec_test_secret", DefaultTolerance, now)
			assert.ErrorIs(t, err, ErrInvalidSignatureHeader)
		})
	}
}
