package cmd

import (
	"fmt"

	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/spf13/cobra"
)

func newReadCmd(s *settings) *cobra.Command {
	var raw bool

	readCmd := &cobra.Command{
		Use:   "read <address>",
		Short: "Print a stored block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := s.openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()

			block, err := db.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if raw {
				data, err := block.Encode()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			ns, err := nameservice.New(s.profileDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "nonce:     %d\n", block.Header.Nonce)
			fmt.Fprintf(out, "timestamp: %s\n", block.Header.TimeStamp)
			fmt.Fprintf(out, "size:      %d\n", block.Header.TotalSize)
			fmt.Fprintf(out, "signer:    %s\n", ns.Lookup(block.Signer()))
			fmt.Fprintf(out, "valid:     %t\n", s.miner().Validate(block))
			fmt.Fprintf(out, "payload:   %s\n", block.Payload)

			return nil
		},
	}

	readCmd.Flags().BoolVar(&raw, "raw", false, "Write the serialized block to stdout.")

	return readCmd
}
