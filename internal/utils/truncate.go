package utils

// Truncate caps s at max bytes on a rune boundary. User questions are
// stored in a column sized for 2000 characters, so callers pass 1900 to
// keep headroom for escaping.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if isRuneStart(s[i]) {
			return s[:i]
		}
	}
	return ""
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
