// Package barcode validates product barcode identifiers.
package barcode

import (
	"errors"
	"regexp"
	"strings"
)

// barcodePattern accepts EAN-8, UPC-A and EAN-13: all-digit strings of
// exactly 8, 12 or 13 characters.
var barcodePattern = regexp.MustCompile(`^(\d{8}|\d{12}|\d{13})$`)

// InvalidBarcodeError reports a barcode that does not match any supported
// format. The boundary layer maps it to a client error response.
type InvalidBarcodeError struct {
	Input string
}

func (e *InvalidBarcodeError) Error() string {
	return "invalid barcode format, expected EAN-8, UPC-A or EAN-13"
}

// IsInvalid reports whether err is (or wraps) an InvalidBarcodeError.
func IsInvalid(err error) bool {
	var ibe *InvalidBarcodeError
	return errors.As(err, &ibe)
}

// Validate trims the input and checks it against the supported barcode
// formats. It returns the trimmed digit string on success.
func Validate(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if !barcodePattern.MatchString(trimmed) {
		return "", &InvalidBarcodeError{Input: trimmed}
	}
	return trimmed, nil
}
