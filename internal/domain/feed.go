package domain

import (
	"bytes"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeFeedRef lowercases a feed reference and strips a 0x prefix.
func NormalizeFeedRef(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.TrimPrefix(ref, "0x")
}

// DecodeFeedText returns the printable text held in a hex encoded bytes32
// feed key, e.g. "0x4254430000..." -> "BTC". It returns "" when ref is not
// such a key.
func DecodeFeedText(ref string) string {
	raw, err := hex.DecodeString(NormalizeFeedRef(ref))
	if err != nil || len(raw) != 32 {
		return ""
	}
	raw = bytes.TrimRight(raw, "\x00")
	if len(raw) == 0 || !utf8.Valid(raw) {
		return ""
	}
	for _, r := range string(raw) {
		if !unicode.IsPrint(r) {
			return ""
		}
	}
	return string(raw)
}

// FeedRefMatches reports whether a metadata feed reference designates the
// on-chain feed key. Comparison ignores case and a 0x prefix, and also
// accepts the plain symbol packed into a bytes32 key.
func FeedRefMatches(metadata, onChain string) bool {
	m := NormalizeFeedRef(metadata)
	c := NormalizeFeedRef(onChain)
	if m == "" || c == "" {
		return false
	}
	if m == c {
		return true
	}
	text := DecodeFeedText(onChain)
	return text != "" && strings.EqualFold(text, strings.TrimSpace(metadata))
}
