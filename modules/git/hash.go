package git

const (
	// OIDHexSize is the length of a hex encoded SHA-1 object ID.
	OIDHexSize = 40
	// ZeroOID is the all-zero object ID update-ref expects for an
	// absent ref in a compare-and-swap.
	ZeroOID = "0000000000000000000000000000000000000000"
)

func isHexByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f'
}

// ValidateHex reports whether s is a full-length lowercase hex object ID.
func ValidateHex(s string) bool {
	if len(s) != OIDHexSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexByte(s[i]) {
			return false
		}
	}
	return true
}
