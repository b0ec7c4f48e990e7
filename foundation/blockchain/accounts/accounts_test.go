package accounts_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// Smaller keys keep key generation fast in tests.
const testBits = 2048

// =============================================================================

func newStore(t *testing.T) *accounts.Store {
	store, err := accounts.NewStore(accounts.Config{
		Dir:  t.TempDir(),
		Bits: testBits,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
	}

	return store
}

func Test_CreateActivate(t *testing.T) {
	store := newStore(t)

	t.Log("Given the need to create and activate an account.")
	{
		if err := store.Create("alice"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to create an account.", success)

		for _, path := range []string{store.PrivateKeyPath("alice"), store.PublicKeyPath("alice")} {
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("\t%s\tShould find key file %s: %s", failed, path, err)
			}
		}
		t.Logf("\t%s\tShould find both key files.", success)

		pemData, err := os.ReadFile(store.PrivateKeyPath("alice"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the private key file: %s", failed, err)
		}
		if !bytes.Contains(pemData, []byte("ENCRYPTED PRIVATE KEY")) {
			t.Fatalf("\t%s\tShould have an encrypted private key container.", failed)
		}
		t.Logf("\t%s\tShould have an encrypted private key container.", success)

		var acct accounts.Account
		if err := store.Activate(&acct, "alice"); err != nil {
			t.Fatalf("\t%s\tShould be able to activate the account: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to activate the account.", success)

		if !acct.IsActive() || acct.Name != "alice" {
			t.Fatalf("\t%s\tShould have both keys set.", failed)
		}
		t.Logf("\t%s\tShould have both keys set.", success)

		acct.Deactivate()
		if acct.PublicKey != nil || acct.PrivateKey != nil {
			t.Fatalf("\t%s\tShould clear both keys on deactivate.", failed)
		}
		t.Logf("\t%s\tShould clear both keys on deactivate.", success)

		if _, err := os.Stat(store.PrivateKeyPath("alice")); err != nil {
			t.Fatalf("\t%s\tShould leave the files after deactivate: %s", failed, err)
		}
		t.Logf("\t%s\tShould leave the files after deactivate.", success)
	}
}

func Test_CreateTwice(t *testing.T) {
	store := newStore(t)

	t.Log("Given the need to never overwrite an identity.")
	{
		if err := store.Create("bob"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		before, err := os.ReadFile(store.PrivateKeyPath("bob"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the private key: %s", failed, err)
		}

		err = store.Create("bob")
		if !errors.Is(err, accounts.ErrAccountExists) {
			t.Fatalf("\t%s\tShould get ErrAccountExists: %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrAccountExists.", success)

		after, err := os.ReadFile(store.PrivateKeyPath("bob"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the private key: %s", failed, err)
		}
		if !bytes.Equal(before, after) {
			t.Fatalf("\t%s\tShould leave the private key unchanged.", failed)
		}
		t.Logf("\t%s\tShould leave the private key unchanged.", success)
	}
}

func Test_ActivatePartial(t *testing.T) {
	type table struct {
		name   string
		remove func(store *accounts.Store) string
	}

	tt := []table{
		{name: "missing private key", remove: func(s *accounts.Store) string { return s.PrivateKeyPath("carol") }},
		{name: "missing public key", remove: func(s *accounts.Store) string { return s.PublicKeyPath("carol") }},
	}

	t.Log("Given the need to refuse partial identities.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					store := newStore(t)
					if err := store.Create("carol"); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to create an account: %s", failed, testID, err)
					}

					if err := os.Remove(tst.remove(store)); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to remove a key file: %s", failed, testID, err)
					}

					acct := accounts.Account{Name: "carol"}
					err := store.Activate(&acct, "carol")
					if !errors.Is(err, accounts.ErrAccountMissingOrMalformed) {
						t.Fatalf("\t%s\tTest %d:\tShould get ErrAccountMissingOrMalformed: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get ErrAccountMissingOrMalformed.", success, testID)

					if acct.PublicKey != nil || acct.PrivateKey != nil {
						t.Fatalf("\t%s\tTest %d:\tShould leave the handle deactivated.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the handle deactivated.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_ActivateMalformed(t *testing.T) {
	store := newStore(t)

	t.Log("Given the need to refuse malformed key files.")
	{
		if err := store.Create("dave"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		if err := os.WriteFile(store.PublicKeyPath("dave"), []byte("garbage"), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to corrupt the public key: %s", failed, err)
		}

		var acct accounts.Account
		if err := store.Activate(&acct, "dave"); !errors.Is(err, accounts.ErrAccountMissingOrMalformed) {
			t.Fatalf("\t%s\tShould get ErrAccountMissingOrMalformed: %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrAccountMissingOrMalformed.", success)

		if acct.IsActive() {
			t.Fatalf("\t%s\tShould leave the handle deactivated.", failed)
		}
		t.Logf("\t%s\tShould leave the handle deactivated.", success)
	}
}

func Test_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	t.Log("Given the need to protect the private key with a passphrase.")
	{
		store, err := accounts.NewStore(accounts.Config{
			Dir:        dir,
			Bits:       testBits,
			Passphrase: func(string) ([]byte, error) { return []byte("secret"), nil },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		if err := store.Create("erin"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		other, err := accounts.NewStore(accounts.Config{
			Dir:        dir,
			Passphrase: func(string) ([]byte, error) { return []byte("wrong"), nil },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		var acct accounts.Account
		if err := other.Activate(&acct, "erin"); !errors.Is(err, accounts.ErrAccountMissingOrMalformed) {
			t.Fatalf("\t%s\tShould fail to activate with the wrong passphrase: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to activate with the wrong passphrase.", success)

		if err := store.Activate(&acct, "erin"); err != nil {
			t.Fatalf("\t%s\tShould activate with the right passphrase: %s", failed, err)
		}
		t.Logf("\t%s\tShould activate with the right passphrase.", success)
	}
}

func Test_DefaultPassphrase(t *testing.T) {
	dir := t.TempDir()

	t.Log("Given the need to know how keys are written without a passphrase provider.")
	{
		store, err := accounts.NewStore(accounts.Config{Dir: dir, Bits: testBits})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		if err := store.Create("gina"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		data, err := os.ReadFile(store.PrivateKeyPath("gina"))
		if err != nil || !bytes.Contains(data, []byte("ENCRYPTED PRIVATE KEY")) {
			t.Fatalf("\t%s\tShould write an encrypted private key: %v", failed, err)
		}
		t.Logf("\t%s\tShould write an encrypted private key.", success)

		named, err := accounts.NewStore(accounts.Config{
			Dir:        dir,
			Passphrase: func(name string) ([]byte, error) { return []byte(name), nil },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		var acct accounts.Account
		if err := named.Activate(&acct, "gina"); err != nil {
			t.Fatalf("\t%s\tShould decrypt with the account name: %s", failed, err)
		}
		t.Logf("\t%s\tShould decrypt with the account name.", success)

		plain, err := accounts.NewStore(accounts.Config{
			Dir:        dir,
			Bits:       testBits,
			Passphrase: func(string) ([]byte, error) { return nil, nil },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		if err := plain.Create("hank"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		data, err = os.ReadFile(plain.PrivateKeyPath("hank"))
		if err != nil || bytes.Contains(data, []byte("ENCRYPTED")) {
			t.Fatalf("\t%s\tShould write a plain key for an empty passphrase: %v", failed, err)
		}
		t.Logf("\t%s\tShould write a plain key for an empty passphrase.", success)
	}
}

func Test_Login(t *testing.T) {
	store := newStore(t)
	if err := store.Create("frank"); err != nil {
		t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
	}

	t.Log("Given the need to log in with a name from an input source.")
	{
		var out bytes.Buffer
		pp := accounts.PromptProvider{
			In:  strings.NewReader("frank\n"),
			Out: &out,
		}

		var acct accounts.Account
		if err := store.Login(&acct, pp); err != nil {
			t.Fatalf("\t%s\tShould be able to log in: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to log in.", success)

		if out.String() != "Username: " {
			t.Fatalf("\t%s\tShould prompt for the user name: %q", failed, out.String())
		}
		t.Logf("\t%s\tShould prompt for the user name.", success)

		if !acct.IsActive() {
			t.Fatalf("\t%s\tShould have an activated account.", failed)
		}
		t.Logf("\t%s\tShould have an activated account.", success)

		if err := store.Login(&acct, accounts.StaticName("nobody")); !errors.Is(err, accounts.ErrAccountMissingOrMalformed) {
			t.Fatalf("\t%s\tShould fail to log in as an unknown account: %v", failed, err)
		}
		if acct.IsActive() {
			t.Fatalf("\t%s\tShould leave the handle deactivated after a failed login.", failed)
		}
		t.Logf("\t%s\tShould fail to log in as an unknown account.", success)
	}
}

func Test_Names(t *testing.T) {
	store := newStore(t)

	t.Log("Given the need to list the accounts in a profile directory.")
	{
		for _, name := range []string{"zed", "amy"} {
			if err := store.Create(name); err != nil {
				t.Fatalf("\t%s\tShould be able to create account %s: %s", failed, name, err)
			}
		}

		names, err := store.Names()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to list names: %s", failed, err)
		}

		if len(names) != 2 || names[0] != "amy" || names[1] != "zed" {
			t.Fatalf("\t%s\tShould get the sorted names: %v", failed, names)
		}
		t.Logf("\t%s\tShould get the sorted names.", success)

		if err := store.Create("../escape"); !errors.Is(err, accounts.ErrInvalidName) {
			t.Fatalf("\t%s\tShould refuse names with path separators: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse names with path separators.", success)
	}
}
