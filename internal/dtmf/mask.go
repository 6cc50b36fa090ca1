package dtmf

import "strings"

const maskRune = '*'

// Mask hides all but a short suffix of a captured digit string. The visible
// suffix is ceil(len/3) characters, at least 1 and at most 2; strings of
// length <= 2 are fully masked.
func Mask(digits string) string {
	n := len(digits)
	if n == 0 {
		return ""
	}
	if n <= 2 {
		return strings.Repeat(string(maskRune), n)
	}

	shown := (n + 2) / 3
	if shown > 2 {
		shown = 2
	}
	if shown < 1 {
		shown = 1
	}
	return strings.Repeat(string(maskRune), n-shown) + digits[n-shown:]
}
