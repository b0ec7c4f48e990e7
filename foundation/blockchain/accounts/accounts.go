// Package accounts maintains the signing identities used to seal blocks. Each
// account is a named RSA key pair persisted under a profile directory.
package accounts

import (
	"bufio"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openchain/blockchain/foundation/blockchain/signature"
	"github.com/youmark/pkcs8"
)

// Set of error variables for account handling.
var (
	ErrAccountExists             = errors.New("account already exists")
	ErrAccountMissingOrMalformed = errors.New("account missing or malformed")
	ErrInvalidName               = errors.New("invalid account name")
)

// File extensions for the key material of an account.
const (
	privateKeyExt = ".pem"
	publicKeyExt  = ".der"
)

// DefaultBits is the RSA modulus size used when none is configured.
const DefaultBits = 4096

// Passphrase returns the passphrase protecting the private key of the
// named account.
type Passphrase func(name string) ([]byte, error)

// DefaultPassphrase derives the passphrase from the account name. It offers
// no secrecy and exists so key files are always written encrypted when no
// credential provider is configured.
func DefaultPassphrase(name string) ([]byte, error) {
	return []byte(name), nil
}

// =============================================================================

// Account represents a named signing identity. An account is activated when
// both keys are loaded and deactivated when neither is.
type Account struct {
	Name       string
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// IsActive reports whether both keys are loaded.
func (a *Account) IsActive() bool {
	return a.PublicKey != nil && a.PrivateKey != nil
}

// Deactivate clears the in-memory key references. Files on disk are
// not touched.
func (a *Account) Deactivate() {
	a.PublicKey = nil
	a.PrivateKey = nil
}

// PublicKeyDER returns the DER (PKIX) encoding of the account public key.
func (a *Account) PublicKeyDER() ([]byte, error) {
	return signature.MarshalPublicKey(a.PublicKey)
}

// PublicKeyPEM returns the public key in PEM form for display.
func (a *Account) PublicKeyPEM() ([]byte, error) {
	der, err := a.PublicKeyDER()
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Fingerprint returns the signer identifier for this account.
func (a *Account) Fingerprint() (string, error) {
	der, err := a.PublicKeyDER()
	if err != nil {
		return "", err
	}

	return signature.Fingerprint(der), nil
}

// =============================================================================

// Config represents the settings for a key store.
type Config struct {
	Dir        string
	Bits       int
	Passphrase Passphrase
}

// Store creates and loads accounts from a profile directory.
type Store struct {
	dir        string
	bits       int
	passphrase Passphrase
}

// NewStore constructs a key store, creating the profile directory if needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Bits == 0 {
		cfg.Bits = DefaultBits
	}
	if cfg.Passphrase == nil {
		cfg.Passphrase = DefaultPassphrase
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating profile dir: %w", err)
	}

	s := Store{
		dir:        cfg.Dir,
		bits:       cfg.Bits,
		passphrase: cfg.Passphrase,
	}

	return &s, nil
}

// Dir returns the profile directory.
func (s *Store) Dir() string {
	return s.dir
}

// PrivateKeyPath returns the location of the encrypted private key.
func (s *Store) PrivateKeyPath(name string) string {
	return filepath.Join(s.dir, name+privateKeyExt)
}

// PublicKeyPath returns the location of the DER encoded public key.
func (s *Store) PublicKeyPath(name string) string {
	return filepath.Join(s.dir, name+publicKeyExt)
}

// Create generates a new key pair for the named account and writes it to
// the profile directory. An existing identity is never overwritten.
func (s *Store) Create(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if _, err := os.Stat(s.PrivateKeyPath(name)); err == nil {
		return fmt.Errorf("%w: %s", ErrAccountExists, name)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, s.bits)
	if err != nil {
		return fmt.Errorf("%w: generating key: %s", signature.ErrCrypto, err)
	}

	pass, err := s.passphrase(name)
	if err != nil {
		return fmt.Errorf("passphrase: %w", err)
	}

	opts := pkcs8.Opts{
		Cipher: pkcs8.AES256CBC,
		KDFOpts: pkcs8.PBKDF2Opts{
			SaltSize:       16,
			IterationCount: 10000,
			HMACHash:       crypto.SHA256,
		},
	}

	blockType := "ENCRYPTED PRIVATE KEY"
	var encrypted []byte
	switch len(pass) {
	case 0:
		blockType = "PRIVATE KEY"
		encrypted, err = x509.MarshalPKCS8PrivateKey(privateKey)
	default:
		encrypted, err = pkcs8.MarshalPrivateKey(privateKey, pass, &opts)
	}
	if err != nil {
		return fmt.Errorf("%w: encoding private key: %s", signature.ErrCrypto, err)
	}

	publicDER, err := signature.MarshalPublicKey(&privateKey.PublicKey)
	if err != nil {
		return err
	}

	pemData := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: encrypted})
	if err := writeExclusive(s.PrivateKeyPath(name), pemData); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAccountExists, name)
		}
		return fmt.Errorf("writing private key: %w", err)
	}

	// The private key alone would leave a half created identity behind.
	if err := writeExclusive(s.PublicKeyPath(name), publicDER); err != nil {
		os.Remove(s.PrivateKeyPath(name))
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// Activate loads both key files for the named account into the handle. On
// failure the handle is left deactivated.
func (s *Store) Activate(acct *Account, name string) error {
	acct.Deactivate()
	acct.Name = name

	if err := validateName(name); err != nil {
		return err
	}

	publicDER, err := os.ReadFile(s.PublicKeyPath(name))
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrAccountMissingOrMalformed, name, err)
	}

	publicKey, err := signature.ParsePublicKey(publicDER)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrAccountMissingOrMalformed, name, err)
	}

	pemData, err := os.ReadFile(s.PrivateKeyPath(name))
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrAccountMissingOrMalformed, name, err)
	}

	privateKey, err := s.parsePrivateKey(name, pemData)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrAccountMissingOrMalformed, name, err)
	}

	if !privateKey.PublicKey.Equal(publicKey) {
		return fmt.Errorf("%w: %s: public key does not match private key", ErrAccountMissingOrMalformed, name)
	}

	acct.PublicKey = publicKey
	acct.PrivateKey = privateKey

	return nil
}

// NameProvider supplies the name of the account to log in with.
type NameProvider interface {
	AccountName() (string, error)
}

// Login asks the provider for a name and activates that account.
func (s *Store) Login(acct *Account, np NameProvider) error {
	acct.Deactivate()

	name, err := np.AccountName()
	if err != nil {
		return fmt.Errorf("reading account name: %w", err)
	}

	return s.Activate(acct, name)
}

// Names returns the names of every account with a private key in the
// profile directory.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading profile dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != privateKeyExt {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), privateKeyExt))
	}
	sort.Strings(names)

	return names, nil
}

// parsePrivateKey decodes the PEM container, decrypting it when needed.
func (s *Store) parsePrivateKey(name string, pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no pem block found")
	}

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		pass, err := s.passphrase(name)
		if err != nil {
			return nil, fmt.Errorf("passphrase: %w", err)
		}
		return pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, pass)

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		privateKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key type %T is not rsa", key)
		}
		return privateKey, nil
	}

	return nil, fmt.Errorf("unsupported pem block type %q", block.Type)
}

// =============================================================================

// PromptProvider reads an account name from an input stream after writing
// a prompt to the output stream.
type PromptProvider struct {
	In  io.Reader
	Out io.Writer
}

// AccountName implements the NameProvider interface.
func (pp PromptProvider) AccountName() (string, error) {
	if pp.Out != nil {
		fmt.Fprint(pp.Out, "Username: ")
	}

	line, err := bufio.NewReader(pp.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// StaticName is a NameProvider that always returns the same name.
type StaticName string

// AccountName implements the NameProvider interface.
func (sn StaticName) AccountName() (string, error) {
	return string(sn), nil
}

// =============================================================================

// validateName makes sure the name can be used as a file name inside the
// profile directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

// writeExclusive creates the file and fails if it already exists.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	return f.Close()
}
