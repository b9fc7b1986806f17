package validation

import "strings"

const nationalIDLength = 11

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidNationalID reports whether raw is a well-formed national id: eleven
// digits (punctuation ignored), not all identical, whose last two digits are
// the mod-11 check digits of the nine before them.
func ValidNationalID(raw string) bool {
	digits := DigitsOnly(raw)
	if len(digits) != nationalIDLength {
		return false
	}
	if allSame(digits) {
		return false
	}

	first := checkDigit(digits[:9])
	second := checkDigit(digits[:9] + string(rune('0'+first)))

	return int(digits[9]-'0') == first && int(digits[10]-'0') == second
}

// checkDigit weights each digit by len(base)+1-i and folds the sum mod 11.
func checkDigit(base string) int {
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * (len(base) + 1 - i)
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
