// Package cmd contains the blockchain command line tool.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/database/storage"
	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrNoCommand is returned when the tool is run without a subcommand.
var ErrNoCommand = errors.New("missing subcommand")

// settings holds the persistent flags every subcommand shares.
type settings struct {
	build      string
	profileDir string
	blockDir   string
	indexDir   string
	legacy     bool
	bits       int
	difficulty int
	workers    int
	verbose    bool

	log *zap.SugaredLogger
}

// Execute runs the tool and returns the process exit status.
func Execute(build string) int {
	if err := newRootCmd(build).Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(build string) *cobra.Command {
	s := settings{build: build}

	rootCmd := &cobra.Command{
		Use:     "blockchain",
		Short:   "Create, store and share signed proof of work blocks",
		Version: build,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch s.verbose {
			case true:
				s.log, err = logger.New("BLOCKCHAIN")
			default:
				s.log, err = logger.NewQuiet("BLOCKCHAIN")
			}
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if s.log != nil {
				s.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Help()
			return ErrNoCommand
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&s.profileDir, "profile", "zblock/profile/", "Path to the directory with the account keys.")
	pf.StringVar(&s.blockDir, "blocks", "zblock/blocks/", "Path to the directory with the block files.")
	pf.StringVar(&s.indexDir, "index", "zblock/index/", "Path to the directory with the block index.")
	pf.BoolVar(&s.legacy, "legacy", false, "Name block files the way older stores did.")
	pf.IntVar(&s.bits, "bits", accounts.DefaultBits, "RSA key size for new accounts.")
	pf.IntVar(&s.difficulty, "difficulty", 0, "Fixed mining difficulty, 0 derives the target from the block size.")
	pf.IntVar(&s.workers, "workers", 0, "Mining workers, 0 uses one per CPU.")
	pf.BoolVarP(&s.verbose, "verbose", "v", false, "Log block events.")

	rootCmd.AddCommand(
		newAccountCmd(&s),
		newCreateCmd(&s),
		newQueryCmd(&s),
		newReadCmd(&s),
		newServerCmd(&s),
		newShareCmd(&s),
	)

	return rootCmd
}

// =============================================================================

func (s *settings) keys() (*accounts.Store, error) {
	return accounts.NewStore(accounts.Config{
		Dir:  s.profileDir,
		Bits: s.bits,
	})
}

func (s *settings) evHandler() func(v string, args ...any) {
	return func(v string, args ...any) {
		s.log.Infow(fmt.Sprintf(v, args...))
	}
}

func (s *settings) miner() *database.Miner {
	difficulty := database.SizeTarget
	if s.difficulty > 0 {
		difficulty = database.FixedDifficulty(s.difficulty)
	}

	return database.NewMiner(database.MinerConfig{
		Difficulty: difficulty,
		Workers:    s.workers,
		EvHandler:  s.evHandler(),
	})
}

// openDB opens the block store. The index is only attached when withIndex is
// set. A node holding the index lock does not stop blocks from being written,
// the node indexes them on its next start.
func (s *settings) openDB(withIndex bool) (*database.Database, *index.Index, error) {
	disk, err := storage.NewDisk(s.blockDir, s.legacy)
	if err != nil {
		return nil, nil, err
	}

	var idx *index.Index
	var indexer database.Indexer
	if withIndex {
		idx, err = index.Open(s.indexDir)
		switch {
		case err != nil:
			s.log.Warnw("index unavailable", "dir", s.indexDir, "ERROR", err)
			idx = nil
		default:
			indexer = idx
		}
	}

	db, err := database.New(database.Config{
		Storage:   disk,
		Indexer:   indexer,
		EvHandler: s.evHandler(),
	})
	if err != nil {
		if idx != nil {
			idx.Close()
		}
		return nil, nil, err
	}

	return db, idx, nil
}

// readPayload returns the file contents, or the arguments joined by spaces
// when no file is named.
func readPayload(file string, args []string) ([]byte, error) {
	switch {
	case file != "":
		return os.ReadFile(file)
	case len(args) > 0:
		return []byte(strings.Join(args, " ")), nil
	}
	return nil, errors.New("a payload or --file is required")
}
