package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/cpu"
)

// KeySize is the key length New expects.
const KeySize = 32

var (
	ErrKeySize          = errors.New("adaptive: key must be 32 bytes")
	ErrUnknownAlgorithm = errors.New("adaptive: unknown algorithm")
	ErrMalformed        = errors.New("adaptive: sealed record too short")
)

// Algorithm identifies an AEAD construction. Its value is the tag byte of
// sealed records.
type Algorithm byte

const (
	AESGCM           Algorithm = 1
	ChaCha20Poly1305 Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case AESGCM:
		return "aes-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

func (a Algorithm) valid() bool {
	return a == AESGCM || a == ChaCha20Poly1305
}

// ParseAlgorithm parses an algorithm name. "" and "auto" select Preferred.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Preferred(), nil
	case "aes-gcm", "aes-256-gcm":
		return AESGCM, nil
	case "chacha20-poly1305", "chacha20":
		return ChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Preferred returns AESGCM when the CPU accelerates AES.
func Preferred() Algorithm {
	if cpu.X86.HasAES || cpu.ARM64.HasAES || cpu.S390X.HasAES {
		return AESGCM
	}
	return ChaCha20Poly1305
}

// Cipher seals with one algorithm and opens records of either. It is safe
// for concurrent use.
type Cipher struct {
	alg   Algorithm
	aeads map[Algorithm]cipher.AEAD
}

// New creates a Cipher sealing with alg. Both algorithms share the key.
func New(key []byte, alg Algorithm) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if !alg.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	chacha, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	return &Cipher{
		alg: alg,
		aeads: map[Algorithm]cipher.AEAD{
			AESGCM:           gcm,
			ChaCha20Poly1305: chacha,
		},
	}, nil
}

// Algorithm returns the algorithm Seal uses.
func (c *Cipher) Algorithm() Algorithm {
	return c.alg
}

// Overhead is the number of bytes Seal adds to a plaintext.
func (c *Cipher) Overhead() int {
	aead := c.aeads[c.alg]
	return 1 + aead.NonceSize() + aead.Overhead()
}

// Seal encrypts plaintext bound to additionalData. The result is
// tag || nonce || ciphertext.
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	aead := c.aeads[c.alg]
	out := make([]byte, 1+aead.NonceSize(), c.Overhead()+len(plaintext))
	out[0] = byte(c.alg)
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("adaptive: read nonce: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open authenticates and decrypts a record produced by Seal with the same
// key and additionalData.
func (c *Cipher) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, ErrMalformed
	}
	aead, ok := c.aeads[Algorithm(sealed[0])]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownAlgorithm, sealed[0])
	}
	body := sealed[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("adaptive: open %s record: %w", Algorithm(sealed[0]), err)
	}
	return plaintext, nil
}

// IsSealed reports whether b starts with a known algorithm tag.
func IsSealed(b []byte) bool {
	return len(b) > 0 && Algorithm(b[0]).valid()
}
