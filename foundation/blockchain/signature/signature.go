// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrCrypto is returned when key generation, signing, verification or
// digest computation fails.
var ErrCrypto = errors.New("crypto failure")

// DigestSize is the size in bytes of the digest used for signing and
// block addressing.
const DigestSize = sha512.Size

// =============================================================================

// Sign produces a signature over the specified data with the private key.
// The data is hashed with SHA-512 and signed using RSA PKCS #1 v1.5.
func Sign(data []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: missing private key", ErrCrypto)
	}

	digest := sha512.Sum512(data)

	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA512, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %s", ErrCrypto, err)
	}

	return sig, nil
}

// Verify checks the signature against the data using the DER (PKIX) encoded
// public key. Any malformed input is reported as a failed verification.
func Verify(data []byte, publicKeyDER []byte, sig []byte) bool {
	publicKey, err := ParsePublicKey(publicKeyDER)
	if err != nil {
		return false
	}

	digest := sha512.Sum512(data)

	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA512, digest[:], sig) == nil
}

// MarshalPublicKey returns the DER (PKIX) encoding of the public key.
func MarshalPublicKey(publicKey *rsa.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("%w: missing public key", ErrCrypto)
	}

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding public key: %s", ErrCrypto, err)
	}

	return der, nil
}

// ParsePublicKey decodes a DER (PKIX) encoded RSA public key.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding public key: %s", ErrCrypto, err)
	}

	publicKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key type %T is not rsa", ErrCrypto, key)
	}

	return publicKey, nil
}

// Fingerprint returns the identifier of a signer: the 0x prefixed hex
// SHA-256 of its DER encoded public key.
func Fingerprint(publicKeyDER []byte) string {
	sum := sha256.Sum256(publicKeyDER)
	return hexutil.Encode(sum[:])
}
