package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openchain/blockchain/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// run executes the tool with the arguments against the directories under
// root and returns what it wrote to stdout.
func run(root string, stdin string, args ...string) (string, error) {
	dirs := []string{
		"--profile", filepath.Join(root, "profile"),
		"--blocks", filepath.Join(root, "blocks"),
		"--index", filepath.Join(root, "index"),
		"--bits", "2048",
		"--difficulty", "8",
	}

	var out bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetArgs(append(args, dirs...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	return out.String(), err
}

func Test_Dispatch(t *testing.T) {
	root := t.TempDir()

	t.Log("Given the need to dispatch subcommands.")
	{
		var out bytes.Buffer
		cmd := newRootCmd("test")
		cmd.SetArgs([]string{})
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})

		if err := cmd.Execute(); !errors.Is(err, ErrNoCommand) {
			t.Fatalf("\t%s\tShould fail without a subcommand: %v", failed, err)
		}
		if !strings.Contains(out.String(), "Available Commands") {
			t.Fatalf("\t%s\tShould print help without a subcommand: %q", failed, out.String())
		}
		t.Logf("\t%s\tShould print help and fail without a subcommand.", success)

		if _, err := run(root, "", "bogus"); err == nil {
			t.Fatalf("\t%s\tShould fail on an unknown subcommand.", failed)
		}
		t.Logf("\t%s\tShould fail on an unknown subcommand.", success)

		if _, err := run(root, "", "account", "list"); err != nil {
			t.Fatalf("\t%s\tShould return the status of a valid subcommand: %s", failed, err)
		}
		t.Logf("\t%s\tShould return the status of a valid subcommand.", success)
	}
}

func Test_CreateReadQuery(t *testing.T) {
	root := t.TempDir()

	t.Log("Given the need to create, read and query blocks from the command line.")
	{
		if _, err := run(root, "", "account", "create", "alice"); err != nil {
			t.Fatalf("\t%s\tShould be able to create an account: %s", failed, err)
		}

		out, err := run(root, "", "account", "list")
		if err != nil || strings.TrimSpace(out) != "alice" {
			t.Fatalf("\t%s\tShould list the account: %v %q", failed, err, out)
		}

		out, err = run(root, "alice\n", "account", "login")
		if err != nil || !strings.Contains(out, "logged in as alice") {
			t.Fatalf("\t%s\tShould be able to log in: %v %q", failed, err, out)
		}
		t.Logf("\t%s\tShould be able to manage accounts.", success)

		out, err = run(root, "", "create", "--account", "alice", "hello", "world")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a block: %s", failed, err)
		}

		var address string
		for _, line := range strings.Split(out, "\n") {
			if rest, ok := strings.CutPrefix(line, "address: "); ok {
				address = rest
			}
		}
		if len(address) != database.AddressLength {
			t.Fatalf("\t%s\tShould print the block address: %q", failed, out)
		}
		t.Logf("\t%s\tShould be able to create a block.", success)

		out, err = run(root, "", "read", address)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the block: %s", failed, err)
		}
		if !strings.Contains(out, "payload:   hello world") || !strings.Contains(out, "signer:    alice") || !strings.Contains(out, "valid:     true") {
			t.Fatalf("\t%s\tShould print the block: %q", failed, out)
		}

		out, err = run(root, "", "read", address, "--raw")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the raw block: %s", failed, err)
		}
		block, err := database.Decode([]byte(out))
		if err != nil || string(block.Payload) != "hello world" {
			t.Fatalf("\t%s\tShould write the serialized block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to read the block.", success)

		out, err = run(root, "", "query")
		if err != nil || !strings.HasPrefix(out, address) {
			t.Fatalf("\t%s\tShould list the block: %v %q", failed, err, out)
		}

		out, err = run(root, "", "query", "--signer", "0xnobody")
		if err != nil || out != "" {
			t.Fatalf("\t%s\tShould list nothing for an unknown signer: %v %q", failed, err, out)
		}
		t.Logf("\t%s\tShould be able to query the index.", success)

		if _, err := run(root, "", "read", strings.Repeat("0", database.AddressLength)); !errors.Is(err, database.ErrBlockNotFound) {
			t.Fatalf("\t%s\tShould fail to read a missing block: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to read a missing block.", success)
	}
}
