// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
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

// AddTransaction adds a new transaction to the mempool and reports the
// index of the block it will be sealed into.
func (h Handlers) AddTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nt newTx
	if err := web.Decode(r, &nt); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(nt); err != nil {
		return err
	}

	tx := database.NewTx(nt.Sender, nt.Recipient, *nt.Amount)

	h.Log.Infow("add tran", "traceid", web.GetTraceID(ctx), "sender", tx.Sender, "recipient", tx.Recipient, "amount", tx.Amount)
	index := h.State.AddTransaction(tx)

	resp := txAdded{
		Message: fmt.Sprintf("Transaction will be added to Block %d", index),
		Index:   index,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Mine runs the proof of work algorithm, rewards this node and forges
// a new block holding every pending transaction.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.MineNewBlock(ctx)
	if err != nil {
		if errors.Is(err, state.ErrChainChanged) {
			return errs.NewTrusted(err, http.StatusConflict)
		}
		return fmt.Errorf("mining: %w", err)
	}

	resp := blockForged{
		Message:      "New Block Forged",
		Index:        block.Index,
		Transactions: block.Transactions,
		Proof:        block.Proof,
		PreviousHash: block.PreviousHash,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns the full chain this node holds.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.RetrieveChain()

	resp := chain{
		Chain:  blocks,
		Length: blocks.Len(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RegisterNodes adds the listed nodes to the set of known peers. Every
// address is checked before any is added. A node is registered by its
// private API address since that is where its chain is fetched from.
func (h Handlers) RegisterNodes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nn newNodes
	if err := web.Decode(r, &nn); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(nn); err != nil {
		return errs.NewTrusted(errors.New("please supply a valid list of nodes"), http.StatusBadRequest)
	}

	for _, address := range nn.Nodes {
		if _, err := peer.Parse(address); err != nil {
			return errs.NewTrusted(fmt.Errorf("node %q: %w", address, err), http.StatusBadRequest)
		}
	}

	for _, address := range nn.Nodes {
		if _, err := h.State.RegisterPeer(address); err != nil {
			return errs.NewTrusted(fmt.Errorf("node %q: %w", address, err), http.StatusBadRequest)
		}
	}

	peers := h.State.RetrieveKnownPeers()
	total := make([]string, len(peers))
	for i, pr := range peers {
		total[i] = pr.Host
	}

	resp := nodesAdded{
		Message:    "New nodes have been added",
		TotalNodes: total,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// ResolveNodes runs the consensus algorithm against every known peer and
// reports which chain this node ended up with.
func (h Handlers) ResolveNodes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	replaced, err := h.State.ResolveConflicts(ctx)
	if err != nil {
		return fmt.Errorf("resolving conflicts: %w", err)
	}

	resp := resolved{
		Message:  "Our chain is authoritative",
		Replaced: replaced,
		Chain:    h.State.RetrieveChain(),
	}
	if replaced {
		resp.Message = "Our chain was replaced"
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}
