package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com": "j*******@example.com",
		"a@b.io":               "*@b.io",
		"":                     "",
		"no-at-sign":           "n*********",
		"élodie@example.com":   "é*****@example.com",
		"ö@example.com":        "*@example.com",
	}
	for in, want := range cases {
		got := MaskEmail(in)
		assert.Equal(t, want, got, in)
		assert.True(t, utf8.ValidString(got), in)
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "**********678", MaskPhone("+254712345678"))
	assert.Equal(t, "**", MaskPhone("12"))
	assert.Equal(t, "", MaskPhone("  "))
	assert.Equal(t, "*****٧٨٩", MaskPhone("٠١٢٣٤٧٨٩"))
}

func TestGenerateSecureCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateSecureCode(8)
		assert.NoError(t, err)
		assert.Len(t, code, 8)
		assert.Regexp(t, `^[A-Z2-7]{8}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)

	_, err := GenerateSecureCode(0)
	assert.Error(t, err)
}
