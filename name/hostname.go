package name

import (
	"fmt"

	"golang.org/x/net/idna"
)

// ToSNI converts a configured hostname to the form TLS clients send in the
// server_name extension. Internationalized names are converted to their
// punycode form; ASCII names are returned unchanged, without case folding,
// since routing matches server names exactly.
func ToSNI(hostname string) (string, error) {
	ascii, err := idna.ToASCII(hostname)
	if err != nil {
		return "", fmt.Errorf("invalid hostname '%s': %w", hostname, err)
	}

	if !isDomainName(ascii) {
		return "", fmt.Errorf("invalid hostname '%s'", hostname)
	}

	return ascii, nil
}

// isDomainName checks that name is a syntactically valid DNS name.
func isDomainName(name string) bool {
	if len(name) == 0 || len(name) > 255 {
		return false
	}

	hasLetter := false
	labelLength := 0
	prev := byte('.')

	for i := 0; i < len(name); i++ {
		c := name[i]

		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', c == '_':
			hasLetter = true
			labelLength++
		case '0' <= c && c <= '9':
			labelLength++
		case c == '-':
			if prev == '.' {
				return false
			}
			labelLength++
		case c == '.':
			if prev == '.' || prev == '-' || labelLength > 63 {
				return false
			}
			labelLength = 0
		default:
			return false
		}

		prev = c
	}

	return hasLetter && prev != '-' && prev != '.' && labelLength < 64
}
