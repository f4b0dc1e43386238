// Package nfce holds the value types and pure validation logic for NFC-e
// access keys: extraction from QR-code URLs, structural decoding, checksum
// verification and identity hashing. Nothing in this package touches the
// network or the database.
package nfce

import (
	"errors"
	"fmt"
	"strconv"
)

// KeyLength is the fixed length of an NFC-e access key.
const KeyLength = 44

var (
	ErrInvalidLength    = errors.New("access key must be exactly 44 digits")
	ErrNonNumeric       = errors.New("access key must contain only digits")
	ErrChecksumMismatch = errors.New("access key verification digit mismatch")
)

// AccessKey is a validated NFC-e access key. The zero value is not usable;
// construct one through ParseAccessKey.
type AccessKey struct {
	raw string
}

// ParseAccessKey validates a raw 44-digit string and returns the structured
// key. The trailing verification digit is recomputed over the first 43 digits
// with the weighted modulo-11 scheme before any field is decoded, so an
// AccessKey in hand is always checksum-valid.
func ParseAccessKey(raw string) (AccessKey, error) {
	if len(raw) != KeyLength {
		return AccessKey{}, fmt.Errorf("%w: got %d characters", ErrInvalidLength, len(raw))
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return AccessKey{}, fmt.Errorf("%w: %q at position %d", ErrNonNumeric, raw[i], i)
		}
	}
	want := VerificationDigit(raw[:KeyLength-1])
	got := int(raw[KeyLength-1] - '0')
	if want != got {
		return AccessKey{}, fmt.Errorf("%w: computed %d, key carries %d", ErrChecksumMismatch, want, got)
	}
	return AccessKey{raw: raw}, nil
}

// VerificationDigit computes the modulo-11 check digit over a digit string.
// Weights cycle 2..9 starting from the rightmost digit; remainders 0 and 1
// map to digit 0, as specified by the tax authority.
func VerificationDigit(digits string) int {
	weight := 2
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// String returns the canonical 44-digit form.
func (k AccessKey) String() string { return k.raw }

// StateCode returns the two-digit IBGE code of the issuing state.
func (k AccessKey) StateCode() string { return k.raw[0:2] }

// IssuePeriod returns the raw AAMM issue period exactly as embedded in
// the key: two-digit year, two-digit month.
func (k AccessKey) IssuePeriod() string { return k.raw[2:6] }

// IssueYearMonth decodes the AAMM issue period. The key carries only a
// two-digit year; it is resolved into the 2000s, the century the format
// was introduced in. Callers that need the undecoded value should use
// IssuePeriod.
func (k AccessKey) IssueYearMonth() (year int, month int) {
	year, _ = strconv.Atoi(k.raw[2:4])
	month, _ = strconv.Atoi(k.raw[4:6])
	return year + 2000, month
}

// CNPJ returns the 14-digit tax id of the issuing establishment.
func (k AccessKey) CNPJ() string { return k.raw[6:20] }

// Model returns the two-digit document model (65 for NFC-e, 55 for NF-e).
func (k AccessKey) Model() string { return k.raw[20:22] }

// Series returns the three-digit document series.
func (k AccessKey) Series() string { return k.raw[22:25] }

// Number returns the sequential receipt number.
func (k AccessKey) Number() int {
	n, _ := strconv.Atoi(k.raw[25:34])
	return n
}

// EmissionType returns the single-digit emission type code.
func (k AccessKey) EmissionType() int {
	return int(k.raw[34] - '0')
}

// VerificationDigitValue returns the trailing check digit carried by the key.
func (k AccessKey) VerificationDigitValue() int {
	return int(k.raw[43] - '0')
}
