// Package crypto loads the resolver's signing key, either raw or from a
// password-encrypted key file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 1
	kdfName        = "pbkdf2-sha256"
	kdfIterations  = 480_000
	saltLen        = 16
	aesKeyLen      = 32
)

// ErrNoKey is returned by LoadKey when neither key source is configured.
var ErrNoKey = errors.New("crypto: no private key source configured")

// keyFile is the on-disk format written by EncryptKey. The address is kept
// in clear so operators can tell which resolver a file belongs to; it is
// also bound into the ciphertext as GCM additional data.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	KDF        kdf    `json:"kdf"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type kdf struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
}

// KeyConfig names the key sources, in priority order. The app fills it from
// ORACLE_RESOLVER_KEY or the [ledger] section.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a hex secp256k1 private key (0x optional) under password
// and returns the JSON key file.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	key, err := ParseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key.Private), []byte(key.Address))
	return json.MarshalIndent(keyFile{
		Version: keyFileVersion,
		Address: key.Address,
		KDF: kdf{
			Name:       kdfName,
			Iterations: kdfIterations,
			Salt:       base64.StdEncoding.EncodeToString(salt),
		},
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
}

// DecryptKey opens a key file and returns the private key as hex without a
// 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion || kf.KDF.Name != kdfName {
		return "", fmt.Errorf("crypto: unsupported key file (version %d, kdf %q)", kf.Version, kf.KDF.Name)
	}
	if kf.KDF.Iterations <= 0 {
		return "", errors.New("crypto: key file has no kdf iterations")
	}

	salt, err := base64.StdEncoding.DecodeString(kf.KDF.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt, kf.KDF.Iterations)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("crypto: key file nonce has the wrong size")
	}
	plain, err := gcm.Open(nil, nonce, sealed, []byte(kf.Address))
	if err != nil {
		return "", errors.New("crypto: cannot open key file (wrong password?)")
	}
	return hex.EncodeToString(plain), nil
}

// KeyFileAddress returns the resolver address recorded in a key file
// without decrypting it.
func KeyFileAddress(data []byte) (string, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Address == "" {
		return "", errors.New("crypto: key file has no address")
	}
	return kf.Address, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

// LoadKey returns the configured private key as hex without 0x. A raw key
// wins over a key file; with neither it returns ErrNoKey.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		k := strings.TrimPrefix(strings.TrimSpace(cfg.RawPrivateKey), "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not hex: %w", err)
		}
		return k, nil
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return "", ErrNoKey
	}
}
