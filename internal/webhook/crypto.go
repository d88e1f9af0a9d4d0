package webhook

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Crypto implements the DingTalk callback wire scheme: SHA1 signatures over
// sorted inputs and AES-256-CBC payload encryption. The IV is fixed to the
// first 16 bytes of the key; the partner system requires this exact scheme,
// do not change it.
type Crypto struct {
	key   []byte
	token string
}

// NewCrypto decodes the base64 AES key (DingTalk hands it out without its
// trailing padding character) and keeps the signing token.
func NewCrypto(aesKey, token string) (*Crypto, error) {
	key, err := base64.StdEncoding.DecodeString(aesKey + "=")
	if err != nil {
		return nil, fmt.Errorf("webhook: decode aes key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("webhook: aes key is %d bytes, want 32", len(key))
	}
	return &Crypto{key: key, token: token}, nil
}

// Signature computes the hex SHA1 of the ascending sort of token and parts,
// joined without a separator. Sorting first makes the result invariant to
// argument order.
func (c *Crypto) Signature(parts ...string) string {
	all := append([]string{c.token}, parts...)
	sort.Strings(all)
	sum := sha1.Sum([]byte(strings.Join(all, "")))
	return hex.EncodeToString(sum[:])
}

// Decrypt reverses Encrypt: base64, AES-CBC, PKCS#7 unpad, then strip the
// 16-byte leading nonce and the 4-byte trailing length field. The length
// value itself is not checked; the frame boundaries alone recover the body.
func (c *Crypto) Decrypt(encrypted string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("webhook: decode payload: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("webhook: ciphertext is not block-aligned")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("webhook: init cipher: %w", err)
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plain, raw)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return nil, err
	}
	if len(plain) < 20 {
		return nil, errors.New("webhook: payload too short")
	}
	return plain[16 : len(plain)-4], nil
}

// Encrypt builds the wire frame for a body: random 16-byte nonce, body, a
// 4-byte big-endian body length, PKCS#7 padding, AES-CBC, base64.
func (c *Crypto) Encrypt(body []byte) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("webhook: generate nonce: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(nonce)
	buf.Write(body)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	buf.Write(length[:])

	plain := pkcs7Pad(buf.Bytes(), aes.BlockSize)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("webhook: init cipher: %w", err)
	}

	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("webhook: empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("webhook: invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("webhook: invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
