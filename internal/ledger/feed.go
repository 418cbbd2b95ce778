package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// EncodeFeedRef packs a feed reference into the bytes32 key the market
// contract expects. A 0x-prefixed 32-byte hex string is used as is; anything
// else is treated as a short symbol and right-padded with zeros.
func EncodeFeedRef(ref string) ([32]byte, error) {
	var out [32]byte
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return out, fmt.Errorf("%w: empty feed reference", domain.ErrInvalidInput)
	}

	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		raw, err := hex.DecodeString(ref[2:])
		if err == nil && len(raw) == 32 {
			copy(out[:], raw)
			return out, nil
		}
	}

	// Leave room for the terminating zero byte.
	if len(ref) > 31 {
		return out, fmt.Errorf("%w: feed reference %q longer than 31 bytes", domain.ErrInvalidInput, ref)
	}
	copy(out[:], ref)
	return out, nil
}
