package access

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Sizes of the password-1 scheme.
const (
	ivSize      = aes.BlockSize
	keySaltSize = 16
	keySize     = 24 // AES-192
	hashSize    = sha256.Size

	// Password1Len is the length of a password-1 hash string.
	Password1Len = 2 * (ivSize + keySaltSize + hashSize)
)

// ErrMalformedHash is returned for a stored hash that is not a password-1 hash.
var ErrMalformedHash = errors.New("access: malformed password-1 hash")

// Password1 hashes a password with the password-1 scheme:
//
//	key         = scrypt(username, keySalt, N=16384, r=8, p=1, 24 bytes)
//	dynamicSalt = last block of AES-192-CBC(key, iv, username)
//	hash        = sha256(staticSalt || dynamicSalt || password)
//
// iv and keySalt are random. The result is hex(iv) + hex(keySalt) + hex(hash).
// staticSalt is hex encoded.
func Password1(staticSalt, username, password string) (string, error) {
	buf := make([]byte, ivSize+keySaltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return password1(buf[:ivSize], buf[ivSize:], staticSalt, username, password)
}

// CheckPassword1 reports whether password matches a password-1 hash.
func CheckPassword1(staticSalt, username, password, hash string) (bool, error) {
	if len(hash) != Password1Len {
		return false, ErrMalformedHash
	}
	iv, err := hex.DecodeString(hash[:2*ivSize])
	if err != nil {
		return false, ErrMalformedHash
	}
	ks, err := hex.DecodeString(hash[2*ivSize : 2*(ivSize+keySaltSize)])
	if err != nil {
		return false, ErrMalformedHash
	}
	got, err := password1(iv, ks, staticSalt, username, password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1, nil
}

func password1(iv, ks []byte, staticSalt, username, password string) (string, error) {
	salt, err := hex.DecodeString(staticSalt)
	if err != nil {
		return "", fmt.Errorf("access: static salt: %w", err)
	}
	key, err := scrypt.Key([]byte(username), ks, 1<<14, 8, 1, keySize)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	src := pad([]byte(username), aes.BlockSize)
	enc := make([]byte, len(src))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, src)

	h := sha256.New()
	h.Write(salt)
	h.Write(enc[len(enc)-aes.BlockSize:])
	h.Write([]byte(password))
	return hex.EncodeToString(iv) + hex.EncodeToString(ks) + hex.EncodeToString(h.Sum(nil)), nil
}

// pad applies PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}
