package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

func newCreateCmd(s *settings) *cobra.Command {
	var (
		account string
		file    string
	)

	createCmd := &cobra.Command{
		Use:   "create [payload...]",
		Short: "Mine, sign and store a block for the payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(file, args)
			if err != nil {
				return err
			}

			keys, err := s.keys()
			if err != nil {
				return err
			}

			var acct accounts.Account
			switch account {
			case "":
				pp := accounts.PromptProvider{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
				err = keys.Login(&acct, pp)
			default:
				err = keys.Activate(&acct, account)
			}
			if err != nil {
				return err
			}
			defer acct.Deactivate()

			db, idx, err := s.openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			if idx != nil {
				defer idx.Close()
			}

			// An interrupt stops the nonce search.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			block, err := s.miner().Mine(ctx, &acct, nil, payload)
			if err != nil {
				return err
			}

			address, err := db.Save(block)
			if err != nil && !errors.Is(err, database.ErrBlockCollision) {
				return err
			}

			path, err := db.PathFor(block)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", address)
			fmt.Fprintf(out, "nonce:   %d\n", block.Header.Nonce)
			fmt.Fprintf(out, "path:    %s\n", path)

			return nil
		},
	}

	createCmd.Flags().StringVarP(&account, "account", "a", "", "Account to sign with, prompts when empty.")
	createCmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from the file.")

	return createCmd
}
