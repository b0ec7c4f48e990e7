// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/openchain/blockchain/app/services/node/handlers/v1/public"
	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/openchain/blockchain/foundation/events"
	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/openchain/blockchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	DB     *database.Database
	Index  *index.Index
	Miner  *database.Miner
	Keys   *accounts.Store
	NS     *nameservice.NameService
	Evts   *events.Events
	Peers  *peer.Set
	Client peer.Client
	Host   string
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
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
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.BlocksBySigner)
	app.Handle(http.MethodGet, version, "/blocks/list/:signer", pbl.BlocksBySigner)
	app.Handle(http.MethodGet, version, "/blocks/:address", pbl.Block)
	app.Handle(http.MethodGet, version, "/blocks/:address/raw", pbl.RawBlock)
	app.Handle(http.MethodPost, version, "/blocks", pbl.ReceiveBlock)
	app.Handle(http.MethodPost, version, "/mine", pbl.Mine)
}
