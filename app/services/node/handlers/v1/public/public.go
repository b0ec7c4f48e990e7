// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openchain/blockchain/business/web/errs"
	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/index"
	"github.com/openchain/blockchain/foundation/blockchain/peer"
	"github.com/openchain/blockchain/foundation/events"
	"github.com/openchain/blockchain/foundation/nameservice"
	"github.com/openchain/blockchain/foundation/validate"
	"github.com/openchain/blockchain/foundation/web"
	"go.uber.org/zap"
)

// maxBlockBytes caps the body of a shared block.
const maxBlockBytes = 64 << 20

// Handlers manages the set of block endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	DB     *database.Database
	Index  *index.Index
	Miner  *database.Miner
	Keys   *accounts.Store
	NS     *nameservice.NameService
	WS     websocket.Upgrader
	Evts   *events.Events
	Peers  *peer.Set
	Client peer.Client
	Host   string
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// BlocksBySigner returns the indexed blocks, optionally only those signed
// by the specified signer.
func (h Handlers) BlocksBySigner(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	signer := web.Param(r, "signer")

	var recs []index.Record
	var err error
	switch signer {
	case "":
		recs, err = h.Index.List()
	default:
		recs, err = h.Index.BySigner(signer)
	}
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	out := make([]blockSummary, len(recs))
	for i, rec := range recs {
		out[i] = blockSummary{
			Record:     rec,
			SignerName: h.NS.Lookup(rec.Signer),
		}
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}

// Block returns the decoded block stored at the address.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	b, err := h.DB.Load(address)
	if err != nil {
		return errs.FromKernel(err)
	}

	out := toBlock(address, b, h.NS.Lookup(b.Signer()), h.Miner.Validate(b))

	return web.Respond(ctx, w, out, http.StatusOK)
}

// RawBlock returns the serialized block stored at the address.
func (h Handlers) RawBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := h.DB.Load(web.Param(r, "address"))
	if err != nil {
		return errs.FromKernel(err)
	}

	data, err := b.Encode()
	if err != nil {
		return err
	}

	return web.RespondBytes(ctx, w, data, "application/octet-stream", http.StatusOK)
}

// ReceiveBlock accepts a serialized block shared by a peer or a client. The
// block must decode and pass validation before it is stored.
func (h Handlers) ReceiveBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	body := http.MaxBytesReader(w, r.Body, maxBlockBytes)

	b, err := database.ReadBlockLimit(body, maxBlockBytes)
	if err != nil {
		return errs.FromKernel(err)
	}

	if !h.Miner.Validate(b) {
		return errs.NewTrusted(errors.New("block failed validation"), http.StatusBadRequest)
	}

	address, err := h.DB.Save(b)
	switch {
	case errors.Is(err, database.ErrBlockCollision):
		return web.Respond(ctx, w, peer.ShareStatus{Status: "exists", Address: address}, http.StatusOK)
	case err != nil:
		return err
	}

	h.Log.Infow("receive block", "traceid", web.GetTraceID(ctx), "address", address, "signer", h.NS.Lookup(b.Signer()))

	return web.Respond(ctx, w, peer.ShareStatus{Status: "stored", Address: address}, http.StatusCreated)
}

// Mine builds a block for the payload, signs it with the named account from
// the node's profile and performs the proof of work. The stored block is
// shared with the known peers.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req MineRequest
	if err := web.Decode(r, &req); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	var acct accounts.Account
	if err := h.Keys.Activate(&acct, req.Account); err != nil {
		return errs.FromKernel(err)
	}
	defer acct.Deactivate()

	b, err := h.Miner.Mine(ctx, &acct, nil, []byte(req.Payload))
	if err != nil {
		return errs.FromKernel(err)
	}

	address, err := h.DB.Save(b)
	if err != nil && !errors.Is(err, database.ErrBlockCollision) {
		return err
	}

	out := mined{
		Address: address,
		Nonce:   b.Header.Nonce,
		Shared:  h.share(ctx, b),
	}

	return web.Respond(ctx, w, out, http.StatusCreated)
}

// share sends the block to every known peer and returns how many accepted
// it. Failures are logged and do not fail the request.
func (h Handlers) share(ctx context.Context, b database.Block) int {
	if h.Peers == nil {
		return 0
	}

	data, err := b.Encode()
	if err != nil {
		return 0
	}

	var shared int
	for _, p := range h.Peers.Copy(h.Host) {
		status, err := h.Client.SendBlock(ctx, p, data)
		if err != nil {
			h.Log.Infow("share block", "traceid", web.GetTraceID(ctx), "peer", p.Host, "ERROR", err)
			continue
		}
		h.Log.Infow("share block", "traceid", web.GetTraceID(ctx), "peer", p.Host, "status", status.Status)
		shared++
	}

	return shared
}
