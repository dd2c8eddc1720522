package logging

// MaskToken shortens a credential for log output. Tokens shorter than 20
// characters are returned as-is (test fixtures, empty strings).
func MaskToken(t string) string {
	if len(t) < 20 {
		return t
	}
	return "..." + t[len(t)-12:]
}
