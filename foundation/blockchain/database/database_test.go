package database_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/database/storage"
	"github.com/openchain/blockchain/foundation/blockchain/database/storage/memory"
)

// recorder is an indexer that remembers what it was told and whether the
// block was already stored at the time.
type recorder struct {
	storage  database.Storage
	inserted []string
	stored   []bool
}

func (r *recorder) InsertBlock(block database.Block) error {
	address, err := block.Address()
	if err != nil {
		return err
	}

	exists, err := r.storage.Exists(address)
	if err != nil {
		return err
	}

	r.inserted = append(r.inserted, address)
	r.stored = append(r.stored, exists)

	return nil
}

func mineBlock(t *testing.T, acct *accounts.Account, payload string) database.Block {
	miner := database.NewMiner(database.MinerConfig{
		Difficulty: database.FixedDifficulty(4),
	})

	b, err := miner.Mine(context.Background(), acct, nil, []byte(payload))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
	}

	return b
}

// =============================================================================

func Test_SaveLoad(t *testing.T) {
	acct := newAccount(t, "alice")

	type table struct {
		name    string
		storage func(t *testing.T) database.Storage
	}

	tt := []table{
		{
			name: "disk",
			storage: func(t *testing.T) database.Storage {
				disk, err := storage.NewDisk(t.TempDir(), false)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to open disk storage: %s", failed, err)
				}
				return disk
			},
		},
		{
			name: "memory",
			storage: func(t *testing.T) database.Storage {
				return memory.New()
			},
		},
	}

	t.Log("Given the need to persist blocks by address.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s storage.", testID, tst.name)
			{
				f := func(t *testing.T) {
					strg := tst.storage(t)
					rec := recorder{storage: strg}

					db, err := database.New(database.Config{Storage: strg, Indexer: &rec})
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct a database: %s", failed, testID, err)
					}
					defer db.Close()

					b := mineBlock(t, acct, "hello")

					address, err := db.Save(b)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to save the block: %s", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to save the block.", success, testID)

					if len(rec.inserted) != 1 || rec.inserted[0] != address || rec.stored[0] {
						t.Fatalf("\t%s\tTest %d:\tShould index the block before writing it: %v %v", failed, testID, rec.inserted, rec.stored)
					}
					t.Logf("\t%s\tTest %d:\tShould index the block before writing it.", success, testID)

					got, err := db.Load(address)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to load the block: %s", failed, testID, err)
					}

					exp, _ := b.Encode()
					data, _ := got.Encode()
					if !bytes.Equal(exp, data) {
						t.Fatalf("\t%s\tTest %d:\tShould load a byte identical block.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould load a byte identical block.", success, testID)

					again, err := db.Save(b)
					if !errors.Is(err, database.ErrBlockCollision) || again != address {
						t.Fatalf("\t%s\tTest %d:\tShould report a collision on the second save: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould report a collision on the second save.", success, testID)

					if len(rec.inserted) != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould not index a duplicate block.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not index a duplicate block.", success, testID)

					got, err = db.Load(address)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to load the block again: %s", failed, testID, err)
					}
					data, _ = got.Encode()
					if !bytes.Equal(exp, data) {
						t.Fatalf("\t%s\tTest %d:\tShould leave the stored block unchanged.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the stored block unchanged.", success, testID)

					if _, err := db.Load(strings.Repeat("0", database.AddressLength)); !errors.Is(err, database.ErrBlockNotFound) {
						t.Fatalf("\t%s\tTest %d:\tShould get ErrBlockNotFound for an unknown address: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get ErrBlockNotFound for an unknown address.", success, testID)

					for _, bad := range []string{"", "../../etc/passwd", address[:127] + "x", address[:126] + "/.", address + "00"} {
						if _, err := db.Load(bad); !errors.Is(err, database.ErrInvalidAddress) {
							t.Fatalf("\t%s\tTest %d:\tShould get ErrInvalidAddress for %q: %v", failed, testID, bad, err)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get ErrInvalidAddress for a malformed address.", success, testID)

					addresses, err := db.Addresses()
					if err != nil || len(addresses) != 1 || addresses[0] != address {
						t.Fatalf("\t%s\tTest %d:\tShould list the stored address: %v %v", failed, testID, addresses, err)
					}
					t.Logf("\t%s\tTest %d:\tShould list the stored address.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Reindex(t *testing.T) {
	acct := newAccount(t, "alice")

	t.Log("Given the need to rebuild an index from the stored blocks.")
	{
		strg := memory.New()

		db, err := database.New(database.Config{Storage: strg})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a database: %s", failed, err)
		}

		for _, payload := range []string{"one", "two", "three"} {
			if _, err := db.Save(mineBlock(t, acct, payload)); err != nil {
				t.Fatalf("\t%s\tShould be able to save a block: %s", failed, err)
			}
		}

		rec := recorder{storage: memory.New()}
		db, err = database.New(database.Config{Storage: strg, Indexer: &rec})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a database: %s", failed, err)
		}

		n, err := db.Reindex()
		if err != nil || n != 3 || len(rec.inserted) != 3 {
			t.Fatalf("\t%s\tShould index every stored block: %d %v", failed, n, err)
		}
		t.Logf("\t%s\tShould index every stored block.", success)

		if err := strg.Write(strings.Repeat("f", database.AddressLength), []byte("corrupt")); err != nil {
			t.Fatalf("\t%s\tShould be able to write a corrupt block: %s", failed, err)
		}

		rec = recorder{storage: memory.New()}
		n, err = db.Reindex()
		if !errors.Is(err, database.ErrMalformedBlock) || n != 3 || len(rec.inserted) != 3 {
			t.Fatalf("\t%s\tShould skip the corrupt block and index the rest: %d %v", failed, n, err)
		}
		t.Logf("\t%s\tShould skip the corrupt block and index the rest.", success)
	}
}

func Test_EndToEnd(t *testing.T) {
	t.Log("Given the need to create, mine, store and validate a block.")
	{
		profiles := t.TempDir()
		blocks := t.TempDir()

		keys, err := accounts.NewStore(accounts.Config{Dir: profiles, Bits: 2048})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a key store: %s", failed, err)
		}

		if err := keys.Create("alice"); err != nil {
			t.Fatalf("\t%s\tShould be able to create alice: %s", failed, err)
		}

		entries, err := os.ReadDir(profiles)
		if err != nil || len(entries) != 2 {
			t.Fatalf("\t%s\tShould find two key files: %d %v", failed, len(entries), err)
		}
		t.Logf("\t%s\tShould find two key files.", success)

		var alice accounts.Account
		if err := keys.Activate(&alice, "alice"); err != nil || !alice.IsActive() {
			t.Fatalf("\t%s\tShould be able to activate alice: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to activate alice.", success)

		miner := database.NewMiner(database.MinerConfig{
			Difficulty: database.FixedDifficulty(6),
		})

		b, err := miner.Mine(context.Background(), &alice, nil, []byte("hello"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
		}

		if !miner.Validate(b) {
			t.Fatalf("\t%s\tShould mine a valid block.", failed)
		}
		t.Logf("\t%s\tShould mine a valid block.", success)

		address, err := b.Address()
		if err != nil || len(address) != 128 {
			t.Fatalf("\t%s\tShould get a 128 character address: %q %v", failed, address, err)
		}
		t.Logf("\t%s\tShould get a 128 character address.", success)

		disk, err := storage.NewDisk(blocks, false)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open disk storage: %s", failed, err)
		}

		db, err := database.New(database.Config{Storage: disk})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a database: %s", failed, err)
		}

		if _, err := db.Save(b); err != nil {
			t.Fatalf("\t%s\tShould be able to save the block: %s", failed, err)
		}

		path := filepath.Join(blocks, address+".block")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("\t%s\tShould find the block file at %s: %s", failed, path, err)
		}
		t.Logf("\t%s\tShould find the block file.", success)

		loaded, err := db.Load(address)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the block: %s", failed, err)
		}

		exp, _ := b.Encode()
		got, _ := loaded.Encode()
		if !bytes.Equal(exp, got) {
			t.Fatalf("\t%s\tShould load a byte identical block.", failed)
		}
		t.Logf("\t%s\tShould load a byte identical block.", success)

		loaded.Payload[0] ^= 0x01
		if miner.Validate(loaded) {
			t.Fatalf("\t%s\tShould fail validation after corrupting one payload byte.", failed)
		}
		t.Logf("\t%s\tShould fail validation after corrupting one payload byte.", success)
	}
}
