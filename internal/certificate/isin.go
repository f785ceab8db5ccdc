package certificate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/CertGoat/internal/types"
)

var isinRe = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// ValidateISIN trims raw and checks the ISIN shape: two upper-case letters,
// nine upper-case alphanumerics, one digit. Lower-case input is rejected. The
// check digit is not verified.
func ValidateISIN(raw string) (string, error) {
	isin := strings.TrimSpace(raw)
	if !isinRe.MatchString(isin) {
		return "", fmt.Errorf("%w: %q", types.ErrMalformedISIN, raw)
	}
	return isin, nil
}
