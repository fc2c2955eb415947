// Package identity produces canonical matching keys for lead phone numbers
// and email addresses. All functions are pure; an empty result means the
// input could not be normalized.
package identity

import "strings"

const minPhoneDigits = 10

// NormalizePhone strips every non-digit character. Inputs with fewer than
// ten digits are considered unusable for matching and return "".
func NormalizePhone(raw string) string {
	var b strings.Builder

	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < minPhoneDigits {
		return ""
	}

	return digits
}

// PhoneLast10 returns the last ten digits of a phone number, the key used
// as a secondary equality when full normalization differs ("+1" prefixed
// vs bare ten-digit formatting).
func PhoneLast10(raw string) string {
	digits := NormalizePhone(raw)
	if digits == "" {
		return ""
	}

	if len(digits) > minPhoneDigits {
		return digits[len(digits)-minPhoneDigits:]
	}

	return digits
}

// NormalizeEmail lowercases and trims an address. Anything without a
// non-empty local part and domain returns "".
func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))

	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}

	return email
}
