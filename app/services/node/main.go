package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/openchain/blockchain/app/services/node/handlers"
	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/database/storage"
	"github.com/openchain/blockchain/foundation/blockchain/database/storage/cache"
	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/openchain/blockchain/foundation/events"
	"github.com/openchain/blockchain/foundation/logger"
	"github.com/openchain/blockchain/foundation/nameservice"
	"go.uber.org/zap"
)

// build is set with -ldflags at release time.
var build = "develop"

// config holds every setting of the node. Values come from the defaults
// below, NODE_ environment variables and command line flags.
type config struct {
	conf.Version
	Web struct {
		ReadTimeout     time.Duration `conf:"default:5s"`
		WriteTimeout    time.Duration `conf:"default:120s,help:must cover the time to mine a block"`
		IdleTimeout     time.Duration `conf:"default:120s"`
		ShutdownTimeout time.Duration `conf:"default:20s"`
		DebugHost       string        `conf:"default:0.0.0.0:7080"`
		PublicHost      string        `conf:"default:0.0.0.0:8080"`
	}
	Store struct {
		ProfileDir string `conf:"default:zblock/profile/"`
		BlockDir   string `conf:"default:zblock/blocks/"`
		IndexDir   string `conf:"default:zblock/index/"`
		Legacy     bool   `conf:"default:false,help:name block files like older stores"`
		CacheSize  int    `conf:"default:256"`
	}
	Miner struct {
		Difficulty  int    `conf:"default:0,help:fixed difficulty or 0 for the size rule"`
		Workers     int    `conf:"default:0"`
		MaxAttempts uint64 `conf:"default:0"`
	}
	Peers struct {
		KnownPeers []string
	}
}

func main() {
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := config{
		Version: conf.Version{
			Build: build,
			Desc:  "single node blockchain",
		},
	}

	help, err := conf.Parse("NODE", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Profile

	// Blocks mined through the API are signed by accounts of this profile.
	keys, err := accounts.NewStore(accounts.Config{
		Dir: cfg.Store.ProfileDir,
	})
	if err != nil {
		return fmt.Errorf("unable to open profile: %w", err)
	}

	ns, err := nameservice.New(cfg.Store.ProfileDir)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for signer, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "signer", signer)
	}

	// =========================================================================
	// Block Store

	// Kernel packages report through this function. Every message is logged
	// and pushed to the websocket listeners of /v1/events.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	db, idx, err := openStore(cfg, ev)
	if err != nil {
		return err
	}
	defer idx.Close()
	defer db.Close()

	// The command line tool writes blocks without the index while a node
	// holds the badger lock.
	n, err := db.Reindex()
	if err != nil {
		log.Warnw("startup", "status", "blocks skipped by index", "ERROR", err)
	}
	log.Infow("startup", "status", "index rebuilt", "blocks", n)

	difficulty := database.SizeTarget
	if cfg.Miner.Difficulty > 0 {
		difficulty = database.FixedDifficulty(cfg.Miner.Difficulty)
	}

	miner := database.NewMiner(database.MinerConfig{
		Difficulty:  difficulty,
		Workers:     cfg.Miner.Workers,
		MaxAttempts: cfg.Miner.MaxAttempts,
		EvHandler:   ev,
	})

	peers := peer.NewSet()
	for _, host := range cfg.Peers.KnownPeers {
		peers.Add(peer.New(host))
	}

	// =========================================================================
	// Debug Service

	// pprof, expvar and health checks. The debug listener is not part of
	// the graceful shutdown.
	go func() {
		log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)
		if err := http.ListenAndServe(cfg.Web.DebugHost, handlers.DebugMux(build, log, db)); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Public Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		DB:       db,
		Index:    idx,
		Miner:    miner,
		Keys:     keys,
		NS:       ns,
		Evts:     evts,
		Peers:    peers,
		Client:   peer.Client{BaseURL: "http://%s/v1"},
		Host:     cfg.Web.PublicHost,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Websocket handlers return once their event channel closes.
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStore opens the block files behind a read cache and the badger index
// that is told about every saved block.
func openStore(cfg config, ev func(v string, args ...any)) (*database.Database, *index.Index, error) {
	disk, err := storage.NewDisk(cfg.Store.BlockDir, cfg.Store.Legacy)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open block storage: %w", err)
	}

	blocks, err := cache.New(disk, cfg.Store.CacheSize)
	if err != nil {
		return nil, nil, err
	}

	idx, err := index.Open(cfg.Store.IndexDir)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.New(database.Config{
		Storage:   blocks,
		Indexer:   idx,
		EvHandler: ev,
	})
	if err != nil {
		idx.Close()
		return nil, nil, err
	}

	return db, idx, nil
}
