// Package e2ee derives per-peer AES-GCM keys over ECDH P-256 and encrypts
// chat bodies with them.
//
// The wire format matches the browser client's WebCrypto usage: public keys
// travel as JWK, the raw ECDH secret is the AES-256 key, and ciphertext is
// base64(iv || sealed) with a 12-byte IV.
package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const ivSize = 12

var (
	// ErrNoSharedKey is returned when encrypting for a peer without a derived key.
	ErrNoSharedKey = errors.New("no shared key for peer")

	// ErrInvalidKey reports a public key that is not a P-256 JWK.
	ErrInvalidKey = errors.New("invalid public key")

	// ErrCiphertext reports input that cannot be decrypted.
	ErrCiphertext = errors.New("cannot decrypt message")
)

// JWK is the subset of a JSON Web Key needed for EC public keys.
type JWK struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	Ext    bool     `json:"ext,omitempty"`
	KeyOps []string `json:"key_ops,omitempty"`
}

// KeyRing holds the local key pair and one AEAD per remote peer.
type KeyRing struct {
	mu     sync.RWMutex
	priv   *ecdh.PrivateKey
	public json.RawMessage
	shared map[string]cipher.AEAD
	rand   io.Reader
}

// NewKeyRing generates a fresh key pair.
func NewKeyRing() (*KeyRing, error) {
	k := &KeyRing{
		shared: make(map[string]cipher.AEAD),
		rand:   rand.Reader,
	}
	if err := k.Reset(); err != nil {
		return nil, err
	}
	return k, nil
}

// PublicKey returns the local public key as JWK JSON.
func (k *KeyRing) PublicKey() json.RawMessage {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.public
}

// Derive computes and stores the shared key for peerID from its JWK public key.
func (k *KeyRing) Derive(peerID string, jwk json.RawMessage) error {
	pub, err := parseJWK(jwk)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	secret, err := k.priv.ECDH(pub)
	if err != nil {
		return fmt.Errorf("ecdh with %s: %w", peerID, err)
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return fmt.Errorf("aes key for %s: %w", peerID, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("gcm for %s: %w", peerID, err)
	}
	k.shared[peerID] = aead
	return nil
}

// Ready reports whether a shared key exists for peerID.
func (k *KeyRing) Ready(peerID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.shared[peerID]
	return ok
}

// Encrypt seals plaintext for peerID.
func (k *KeyRing) Encrypt(peerID, plaintext string) (string, error) {
	k.mu.RLock()
	aead, ok := k.shared[peerID]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %s", ErrNoSharedKey, peerID)
	}

	out := make([]byte, ivSize, ivSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(k.rand, out); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	out = aead.Seal(out, out[:ivSize], []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a message sealed by peerID.
func (k *KeyRing) Decrypt(peerID, ciphertext string) (string, error) {
	k.mu.RLock()
	aead, ok := k.shared[peerID]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %s", ErrNoSharedKey, peerID)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	if len(raw) < ivSize+aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}
	plain, err := aead.Open(nil, raw[:ivSize], raw[ivSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plain), nil
}

// Forget drops the shared key for peerID.
func (k *KeyRing) Forget(peerID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.shared, peerID)
}

// Reset discards every shared key and generates a new key pair.
func (k *KeyRing) Reset() error {
	priv, err := ecdh.P256().GenerateKey(k.rand)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	public, err := json.Marshal(toJWK(priv.PublicKey()))
	if err != nil {
		return fmt.Errorf("export public key: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.priv = priv
	k.public = public
	k.shared = make(map[string]cipher.AEAD)
	return nil
}

func toJWK(pub *ecdh.PublicKey) JWK {
	// Uncompressed point: 0x04 || X || Y.
	b := pub.Bytes()
	n := (len(b) - 1) / 2
	return JWK{
		Kty:    "EC",
		Crv:    "P-256",
		X:      base64.RawURLEncoding.EncodeToString(b[1 : 1+n]),
		Y:      base64.RawURLEncoding.EncodeToString(b[1+n:]),
		Ext:    true,
		KeyOps: []string{},
	}
}

func parseJWK(raw json.RawMessage) (*ecdh.PublicKey, error) {
	var jwk JWK
	if err := json.Unmarshal(raw, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, fmt.Errorf("%w: unsupported key type %s/%s", ErrInvalidKey, jwk.Kty, jwk.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil || len(x) != 32 {
		return nil, fmt.Errorf("%w: bad x coordinate", ErrInvalidKey)
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil || len(y) != 32 {
		return nil, fmt.Errorf("%w: bad y coordinate", ErrInvalidKey)
	}

	point := make([]byte, 0, 65)
	point = append(point, 4)
	point = append(point, x...)
	point = append(point, y...)
	pub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}
