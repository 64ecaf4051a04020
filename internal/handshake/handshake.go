// Package handshake implements C7: RSA-OAEP + AES-GCM hybrid decryption of
// client-supplied IBM-i credentials, and opaque bearer token issuance on
// successful pool open. Grounded on mazori-ai-modelgate's
// internal/crypto/encryption.go EncryptionService for the AES-GCM half
// (nonce-prepended-to-ciphertext, cipher.NewGCM/gcm.Seal/gcm.Open) and the
// teacher's internal/tlslocal key-generation idiom for the RSA keypair
// lifecycle, adapted from EC keys to RSA keys for OAEP wrapping.
package handshake

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

// KeyPair is the process-wide RSA signing/encryption identity used by the
// handshake, identified by KeyID so it can rotate without invalidating
// outstanding tokens (spec.md §3: "tokens embed no key material").
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// PublicKeyPEM returns the PEM-encoded public half, served at
// GET /api/v1/auth/public-key.
func (k *KeyPair) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.PrivateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

const rsaKeyBits = 3072

// GenerateKeyPair creates a fresh process-wide RSA keypair. Used when no
// on-disk key material is configured (IBMI_AUTH_PRIVATE_KEY_PATH unset).
func GenerateKeyPair(keyID string) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA keypair: %w", err)
	}
	return &KeyPair{KeyID: keyID, PrivateKey: priv}, nil
}

// LoadKeyPair reads a PEM-encoded PKCS#1/PKCS#8 private key from path.
func LoadKeyPair(keyID, path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &KeyPair{KeyID: keyID, PrivateKey: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not an RSA key", path)
	}
	return &KeyPair{KeyID: keyID, PrivateKey: key}, nil
}

// KeyStore resolves a KeyID to the KeyPair that can decrypt sessions
// wrapped under it, allowing key rotation: old tokens carry no key
// material, so any still-valid token only needs its pool to remain open,
// not its original key to remain current.
type KeyStore struct {
	keys map[string]*KeyPair
}

// NewKeyStore builds a KeyStore serving a single active KeyPair, the
// common case for this server (one process, one key at a time).
func NewKeyStore(active *KeyPair) *KeyStore {
	return &KeyStore{keys: map[string]*KeyPair{active.KeyID: active}}
}

func (s *KeyStore) Lookup(keyID string) (*KeyPair, bool) {
	kp, ok := s.keys[keyID]
	return kp, ok
}

// Active returns the keystore's sole active keypair plus its id, for
// publishing at the public-key endpoint.
func (s *KeyStore) Active() *KeyPair {
	for _, kp := range s.keys {
		return kp
	}
	return nil
}

// HandshakeRequest is the wire shape of POST /api/v1/auth's body, per
// spec.md §4.7.
type HandshakeRequest struct {
	KeyID               string `json:"keyId"`
	EncryptedSessionKey string `json:"encryptedSessionKey"` // base64, RSA-OAEP wrapped AES key
	IV                  string `json:"iv"`                  // base64 AES-GCM nonce
	AuthTag             string `json:"authTag"`              // base64 GCM tag; appended to the ciphertext when set, otherwise the ciphertext must already end with it
	Ciphertext          string `json:"ciphertext"`           // base64
}

// Credentials is the decrypted plaintext payload, per spec.md §4.7 step 3.
type Credentials struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Decrypt performs the full RSA-OAEP + AES-GCM hybrid decryption described
// in spec.md §4.7 steps 1-3: look up the keypair for req.KeyID, unwrap the
// AES session key with RSA-OAEP, then AES-GCM-decrypt the ciphertext.
// Returns *errs.Error{Kind: KindAuthentication} on any failure, with no
// partial plaintext ever attached to the error (spec.md §4.7's "never
// logs decrypted credentials" / Testable Property 6 token-opacity
// invariant applies equally to error paths).
func Decrypt(store *KeyStore, req HandshakeRequest) (*Credentials, error) {
	kp, ok := store.Lookup(req.KeyID)
	if !ok {
		return nil, errs.Authentication("unknown key id")
	}

	sessionKeyWrapped, err := base64.StdEncoding.DecodeString(req.EncryptedSessionKey)
	if err != nil {
		return nil, errs.Authentication("malformed encrypted session key")
	}
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, kp.PrivateKey, sessionKeyWrapped, nil)
	if err != nil {
		return nil, errs.Authentication("session key unwrap failed")
	}

	iv, err := base64.StdEncoding.DecodeString(req.IV)
	if err != nil {
		return nil, errs.Authentication("malformed iv")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		return nil, errs.Authentication("malformed ciphertext")
	}
	if req.AuthTag != "" {
		tag, err := base64.StdEncoding.DecodeString(req.AuthTag)
		if err != nil {
			return nil, errs.Authentication("malformed auth tag")
		}
		ciphertext = append(ciphertext, tag...)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, errs.Authentication("invalid session key length")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Authentication("construct AES-GCM")
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, errs.Authentication("credential decryption failed: authentication tag mismatch")
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, errs.Authentication("decrypted credential payload is not valid JSON")
	}
	return &creds, nil
}

// OpenPoolFunc attempts to open a gateway pool for creds, returning an
// opaque pool key on success. It is the seam through which Handshake
// invokes C4 without this package depending on internal/pool directly.
type OpenPoolFunc func(ctx context.Context, creds Credentials) (poolKey string, err error)

// GenerateOpaqueToken returns a cryptographically random 256-bit token,
// encoded as unpadded base64url, carrying no identity or key material (spec.md §4.7 step 5 /
// §3's TokenRecord invariant).
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authenticate runs spec.md §4.7 step 4: attempt to open a pool with the
// decrypted credentials. On failure it returns an AuthenticationError that
// never embeds the credentials themselves, only the tool-visible reason.
func Authenticate(ctx context.Context, creds Credentials, open OpenPoolFunc) (string, error) {
	poolKey, err := open(ctx, creds)
	if err != nil {
		return "", errs.Authentication("database authentication failed")
	}
	return poolKey, nil
}
