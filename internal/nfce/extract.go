package nfce

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrMalformedURL = errors.New("qrcode payload is not a valid URL")
	ErrMissingCode  = errors.New("qrcode URL carries no access key parameter")
)

// qrcode key parameter names seen across state viewers. The SP viewer uses
// "p"; a few others expose "chNFe" on the consultation deep link.
var keyParams = []string{"p", "chNFe"}

// ExtractCode isolates the raw access key from a QR-code payload URL.
// The key is carried as a query value, usually followed by pipe-delimited
// auxiliary segments (version, environment, digest) which are discarded.
// No validation beyond "there is a digit string there" happens here;
// ParseAccessKey owns length and checksum checks.
func ExtractCode(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	values := u.Query()
	for _, name := range keyParams {
		v := values.Get(name)
		if v == "" {
			continue
		}
		// drop "|2|1|...|" style trailers, then any formatting noise
		code := digitsOnly(strings.SplitN(v, "|", 2)[0])
		if code == "" {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMissingCode, rawURL)
}

// ExtractCodeLoose accepts either a QR-code URL or a bare access key,
// possibly formatted with spaces or dots. Bare keys are what users paste
// from the printed receipt footer.
func ExtractCodeLoose(input string) (string, error) {
	if code := digitsOnly(input); len(code) == KeyLength {
		return code, nil
	}
	return ExtractCode(input)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
