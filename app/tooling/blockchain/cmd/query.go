package cmd

import (
	"errors"
	"fmt"

	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/spf13/cobra"
)

func newQueryCmd(s *settings) *cobra.Command {
	var (
		signer  string
		reindex bool
	)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "List the indexed blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, idx, err := s.openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			if idx == nil {
				return errors.New("index is unavailable, is a node running on it")
			}
			defer idx.Close()

			if reindex {
				if _, err := db.Reindex(); err != nil {
					s.log.Warnw("blocks skipped by index", "ERROR", err)
				}
			}

			var recs []index.Record
			switch signer {
			case "":
				recs, err = idx.List()
			default:
				recs, err = idx.BySigner(signer)
			}
			if err != nil {
				return err
			}

			ns, err := nameservice.New(s.profileDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rec := range recs {
				fmt.Fprintf(out, "%s %s %s %d\n", rec.Address, rec.TimeStamp, ns.Lookup(rec.Signer), rec.PayloadSize)
			}

			return nil
		},
	}

	queryCmd.Flags().StringVarP(&signer, "signer", "s", "", "Only list blocks signed by this signer.")
	queryCmd.Flags().BoolVar(&reindex, "reindex", false, "Rebuild the index from the block files first.")

	return queryCmd
}
