package signature_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"

	"github.com/openchain/blockchain/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
	}

	der, err := signature.MarshalPublicKey(&pk.PublicKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to encode the public key: %s", failed, err)
	}

	data := []byte("hello")

	t.Log("Given the need to sign and verify data.")
	{
		sig, err := signature.Sign(data, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign data: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign data.", success)

		if len(sig) != pk.Size() {
			t.Fatalf("\t%s\tShould get a signature the size of the key: got %d, exp %d", failed, len(sig), pk.Size())
		}
		t.Logf("\t%s\tShould get a signature the size of the key.", success)

		if !signature.Verify(data, der, sig) {
			t.Fatalf("\t%s\tShould be able to verify the signature.", failed)
		}
		t.Logf("\t%s\tShould be able to verify the signature.", success)

		tampered := []byte("hellO")
		if signature.Verify(tampered, der, sig) {
			t.Fatalf("\t%s\tShould fail to verify tampered data.", failed)
		}
		t.Logf("\t%s\tShould fail to verify tampered data.", success)

		if signature.Verify(data, der[:len(der)-3], sig) {
			t.Fatalf("\t%s\tShould fail to verify with a malformed key.", failed)
		}
		t.Logf("\t%s\tShould fail to verify with a malformed key.", success)
	}
}

func Test_SignMissingKey(t *testing.T) {
	t.Log("Given the need to report signing without a key.")
	{
		_, err := signature.Sign([]byte("hello"), nil)
		if !errors.Is(err, signature.ErrCrypto) {
			t.Fatalf("\t%s\tShould get a crypto failure: %v", failed, err)
		}
		t.Logf("\t%s\tShould get a crypto failure.", success)
	}
}

func Test_Fingerprint(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
	}

	der, err := signature.MarshalPublicKey(&pk.PublicKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to encode the public key: %s", failed, err)
	}

	t.Log("Given the need to identify a signer.")
	{
		fp := signature.Fingerprint(der)
		if !strings.HasPrefix(fp, "0x") || len(fp) != 66 {
			t.Fatalf("\t%s\tShould get a 0x prefixed 32 byte hex value: %s", failed, fp)
		}
		t.Logf("\t%s\tShould get a 0x prefixed 32 byte hex value.", success)

		if fp != signature.Fingerprint(der) {
			t.Fatalf("\t%s\tShould get the same fingerprint twice.", failed)
		}
		t.Logf("\t%s\tShould get the same fingerprint twice.", success)
	}
}
