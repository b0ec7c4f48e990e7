package cmd

import (
	"errors"
	"fmt"

	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/spf13/cobra"
)

func newShareCmd(s *settings) *cobra.Command {
	var peers []string

	shareCmd := &cobra.Command{
		Use:   "share <address>",
		Short: "Send a stored block to peer nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(peers) == 0 {
				return errors.New("at least one --peer is required")
			}

			db, _, err := s.openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()

			block, err := db.Load(args[0])
			if err != nil {
				return err
			}

			data, err := block.Encode()
			if err != nil {
				return err
			}

			ps := peer.NewSet()
			for _, host := range peers {
				ps.Add(peer.New(host))
			}

			client := peer.Client{BaseURL: "http://%s/v1"}

			var failed int
			for _, p := range ps.Copy("") {
				status, err := client.SendBlock(cmd.Context(), p, data)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Host, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.Host, status.Status)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d peers failed", failed, len(peers))
			}

			return nil
		},
	}

	shareCmd.Flags().StringSliceVarP(&peers, "peer", "p", nil, "Peer host to send the block to.")

	return shareCmd
}
