package utils

import "strings"

// MaskEmail keeps the first character of the local part and the domain:
// "jane.doe@example.com" becomes "j*******@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskTail(email, 1)
	}
	local, domain := email[:at], email[at:]
	return maskTail(local, 1) + domain
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	runes := []rune(strings.TrimSpace(phone))
	if len(runes) == 0 {
		return ""
	}
	keep := 3
	if len(runes) <= keep {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keep) + string(runes[len(runes)-keep:])
}

// maskTail works on runes so multi-byte characters are never split.
func maskTail(s string, keep int) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= keep {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:keep]) + strings.Repeat("*", len(runes)-keep)
}
