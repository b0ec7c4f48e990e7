package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openchain/blockchain/app/services/node/handlers"
	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/openchain/blockchain/foundation/events"
	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCmd(s *settings) *cobra.Command {
	var (
		host  string
		peers []string
	)

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the block store over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := s.keys()
			if err != nil {
				return err
			}

			ns, err := nameservice.New(s.profileDir)
			if err != nil {
				return err
			}

			db, idx, err := s.openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			if idx == nil {
				return errors.New("index is unavailable, is a node running on it")
			}
			defer idx.Close()

			if _, err := db.Reindex(); err != nil {
				s.log.Warnw("blocks skipped by index", "ERROR", err)
			}

			ps := peer.NewSet()
			for _, p := range peers {
				ps.Add(peer.New(p))
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(shutdown)

			evts := events.New()
			defer evts.Shutdown()

			srv := http.Server{
				Addr: host,
				Handler: handlers.PublicMux(handlers.MuxConfig{
					Shutdown: shutdown,
					Log:      s.log,
					DB:       db,
					Index:    idx,
					Miner:    s.miner(),
					Keys:     keys,
					NS:       ns,
					Evts:     evts,
					Peers:    ps,
					Client:   peer.Client{BaseURL: "http://%s/v1"},
					Host:     host,
				}),
				ReadTimeout: 5 * time.Second,
				ErrorLog:    zap.NewStdLog(s.log.Desugar()),
			}

			serverErrors := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.OutOrStdout(), "serving blocks on %s\n", host)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case <-shutdown:
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					srv.Close()
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return nil
		},
	}

	serverCmd.Flags().StringVar(&host, "host", "localhost:8080", "Address to listen on.")
	serverCmd.Flags().StringSliceVarP(&peers, "peer", "p", nil, "Peer host to share mined blocks with.")

	return serverCmd
}
