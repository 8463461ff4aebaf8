package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const sealedPrefix = "sealed:"

const (
	saltSize  = 16
	nonceSize = 24
)

var ErrBadPassphrase = errors.New("wrong passphrase or corrupted secret")

// IsSealed reports whether s was produced by Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}

// Seal encrypts plain with a key derived from passphrase.
// Output: "sealed:" + base64(salt | nonce | secretbox).
func Seal(plain, passphrase string) (string, error) {
	var salt [saltSize]byte
	var nonce [nonceSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	key, err := deriveKey(passphrase, salt[:])
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(plain), &nonce, key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Unsealed input is returned unchanged.
func Open(s, passphrase string) (string, error) {
	if !IsSealed(s) {
		return s, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", ErrBadPassphrase
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])
	key, err := deriveKey(passphrase, raw[:saltSize])
	if err != nil {
		return "", err
	}
	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return "", ErrBadPassphrase
	}
	return string(plain), nil
}

func deriveKey(passphrase string, salt []byte) (*[32]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], k)
	return &key, nil
}
