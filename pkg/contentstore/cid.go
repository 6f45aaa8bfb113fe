package contentstore

import "strings"

const (
	cidV0Len = 46
	cidV1Len = 59

	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"
)

// ValidCID reports whether s looks like a content address of one of the two
// recognized families: CIDv0 (Qm..., base58, 46 chars) or CIDv1
// (bafy..., lowercase base32, 59 chars). Anything else is rejected before
// we ever hit the gateway.
func ValidCID(s string) bool {
	switch {
	case len(s) == cidV0Len && strings.HasPrefix(s, "Qm"):
		return onlyChars(s, base58Alphabet)
	case len(s) == cidV1Len && strings.HasPrefix(s, "bafy"):
		return onlyChars(s, base32Alphabet)
	default:
		return false
	}
}

func onlyChars(s, alphabet string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
