package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ResolverKey is the parsed secp256k1 key that signs resolving transactions.
type ResolverKey struct {
	Private *ecdsa.PrivateKey
	// Address is the lowercase hex account of the key.
	Address string
}

// ParseKey parses a hex secp256k1 private key, with or without 0x prefix.
func ParseKey(privateKeyHex string) (*ResolverKey, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &ResolverKey{
		Private: pk,
		Address: strings.ToLower(ethcrypto.PubkeyToAddress(pk.PublicKey).Hex()),
	}, nil
}

// LoadResolverKey resolves and parses the key described by cfg. A missing
// key source yields (nil, nil) so the service can run without on-chain
// resolution.
func LoadResolverKey(cfg KeyConfig) (*ResolverKey, error) {
	hexKey, err := LoadKey(cfg)
	if errors.Is(err, ErrNoKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseKey(hexKey)
}
