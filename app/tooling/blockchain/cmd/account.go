package cmd

import (
	"fmt"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/spf13/cobra"
)

func newAccountCmd(s *settings) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the accounts of the profile",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new account key pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := s.keys()
			if err != nil {
				return err
			}

			if err := keys.Create(args[0]); err != nil {
				return err
			}

			return showAccount(cmd, keys, args[0], false)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print the signer and public key of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := s.keys()
			if err != nil {
				return err
			}

			return showAccount(cmd, keys, args[0], true)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the accounts of the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := s.keys()
			if err != nil {
				return err
			}

			names, err := keys.Names()
			if err != nil {
				return err
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Prompt for an account name and check its keys load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := s.keys()
			if err != nil {
				return err
			}

			pp := accounts.PromptProvider{
				In:  cmd.InOrStdin(),
				Out: cmd.OutOrStdout(),
			}

			var acct accounts.Account
			if err := keys.Login(&acct, pp); err != nil {
				return err
			}
			defer acct.Deactivate()

			fp, err := acct.Fingerprint()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", acct.Name, fp)

			return nil
		},
	}

	accountCmd.AddCommand(createCmd, showCmd, listCmd, loginCmd)

	return accountCmd
}

func showAccount(cmd *cobra.Command, keys *accounts.Store, name string, withKey bool) error {
	var acct accounts.Account
	if err := keys.Activate(&acct, name); err != nil {
		return err
	}
	defer acct.Deactivate()

	fp, err := acct.Fingerprint()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "account: %s\n", acct.Name)
	fmt.Fprintf(out, "signer:  %s\n", fp)
	fmt.Fprintf(out, "keys:    %s\n", keys.PrivateKeyPath(name))

	if withKey {
		pemData, err := acct.PublicKeyPEM()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s", pemData)
	}

	return nil
}
