// Package handlers builds the http muxes of the node: the versioned public
// block API and the debug endpoints.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/openchain/blockchain/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/openchain/blockchain/app/services/node/handlers/v1"
	"github.com/openchain/blockchain/business/web/mid"
	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/openchain/blockchain/foundation/events"
	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/openchain/blockchain/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig holds the block store, miner and supporting services the
// public routes work with.
type MuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	DB       *database.Database
	Index    *index.Index
	Miner    *database.Miner
	Keys     *accounts.Store
	NS       *nameservice.NameService
	Evts     *events.Events
	Peers    *peer.Set
	Client   peer.Client
	Host     string
}

// PublicMux returns the handler serving the public block API.
func PublicMux(cfg MuxConfig) http.Handler {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Cors("*"),
		mid.Panics(),
	)

	// Browser viewers send preflight requests before POST /v1/mine.
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", h, mid.Cors("*"))

	v1.PublicRoutes(app, v1.Config{
		Log:    cfg.Log,
		DB:     cfg.DB,
		Index:  cfg.Index,
		Miner:  cfg.Miner,
		Keys:   cfg.Keys,
		NS:     cfg.NS,
		Evts:   cfg.Evts,
		Peers:  cfg.Peers,
		Client: cfg.Client,
		Host:   cfg.Host,
	})

	return app
}

// DebugStandardLibraryMux returns a fresh mux with the pprof and expvar
// handlers. http.DefaultServeMux is never used, so imported packages can't
// add routes to the node.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux adds the readiness and liveness checks to the standard library
// debug routes.
func DebugMux(build string, log *zap.SugaredLogger, db *database.Database) http.Handler {
	mux := DebugStandardLibraryMux()

	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		DB:    db,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	return mux
}
