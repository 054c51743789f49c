package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const nodeID = "9b2e4f6a0c1d4e2f8a7b6c5d4e3f2a1b"

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

// testGenesis keeps the puzzle cheap for the tests.
func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 2
	return gen
}

// fetcher is a ChainFetcher that serves canned responses per host.
type fetcher struct {
	mu        sync.Mutex
	responses map[string]peer.ChainResponse
	errors    map[string]error
	calls     int
}

func (f *fetcher) FetchChain(ctx context.Context, pr peer.Peer) (peer.ChainResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if err, exists := f.errors[pr.Host]; exists {
		return peer.ChainResponse{}, err
	}

	resp, exists := f.responses[pr.Host]
	if !exists {
		return peer.ChainResponse{}, fmt.Errorf("%s: unreachable", pr.Host)
	}

	return resp, nil
}

// worker records the signals the state sends.
type worker struct {
	mu      sync.Mutex
	starts  int
	cancels int
}

func (w *worker) Shutdown() {}

func (w *worker) SignalStartMining() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
}

func (w *worker) SignalCancelMining() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancels++
}

func newState(t *testing.T, f state.ChainFetcher) *state.State {
	s, err := state.New(state.Config{
		NodeID:     nodeID,
		Host:       "localhost:9080",
		Genesis:    testGenesis(),
		KnownPeers: peer.NewPeerSet(),
		Fetcher:    f,
	})
	ifErrFailNow(t, err)

	return s
}

// mineChain produces a valid chain of the specified length on its own node.
func mineChain(t *testing.T, length int) database.Chain {
	s := newState(t, &fetcher{})
	for s.QueryChainLength() < length {
		s.AddTransaction(database.NewTx("x", "y", float64(s.QueryChainLength())))
		_, err := s.MineNewBlock(context.Background())
		ifErrFailNow(t, err)
	}

	return s.RetrieveChain()
}

func response(chain database.Chain) peer.ChainResponse {
	return peer.ChainResponse{Chain: chain, Length: chain.Len()}
}

// =============================================================================

func Test_New(t *testing.T) {
	t.Log("Given the need to start a ledger.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the ledger is initialized.", testID)
		{
			s := newState(t, nil)

			chain := s.RetrieveChain()
			if chain.Len() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have a chain of length 1: got %d.", failed, testID, chain.Len())
			}
			t.Logf("\t%s\tTest %d:\tShould have a chain of length 1.", success, testID)

			if chain[0].PreviousHash != database.GenesisPreviousHash {
				t.Fatalf("\t%s\tTest %d:\tShould have the genesis previous hash: got %s.", failed, testID, chain[0].PreviousHash)
			}
			t.Logf("\t%s\tTest %d:\tShould have the genesis previous hash.", success, testID)

			if s.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have an empty mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have an empty mempool.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the node id is missing.", testID)
		{
			if _, err := state.New(state.Config{Genesis: testGenesis()}); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould not be able to start.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not be able to start.", success, testID)
		}
	}
}

func Test_MineNewBlock(t *testing.T) {
	t.Log("Given the need to mine a block with a pending transaction.")
	{
		s := newState(t, nil)
		genesisBlock := s.RetrieveLatestBlock()

		index := s.AddTransaction(database.NewTx("a", "b", 10))
		if index != 2 {
			t.Fatalf("\t%s\tShould expect the transaction in block 2: got %d.", failed, index)
		}
		t.Logf("\t%s\tShould expect the transaction in block 2.", success)

		block, err := s.MineNewBlock(context.Background())
		ifErrFailNow(t, err)
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if block.Index != 2 {
			t.Fatalf("\t%s\tShould get block index 2: got %d.", failed, block.Index)
		}
		t.Logf("\t%s\tShould get block index 2.", success)

		exp := []database.Tx{
			database.NewTx("a", "b", 10),
			database.NewTx(genesis.DefaultRewardSender, nodeID, genesis.DefaultMiningReward),
		}
		if len(block.Transactions) != len(exp) {
			t.Fatalf("\t%s\tShould have the transaction and the reward: got %v.", failed, block.Transactions)
		}
		for i := range exp {
			if block.Transactions[i] != exp[i] {
				t.Logf("\t%s\tgot: %s", failed, block.Transactions[i])
				t.Logf("\t%s\texp: %s", failed, exp[i])
				t.Fatalf("\t%s\tShould have the transaction and the reward in order.", failed)
			}
		}
		t.Logf("\t%s\tShould have the transaction and the reward in order.", success)

		if block.PreviousHash != genesisBlock.Hash() {
			t.Fatalf("\t%s\tShould link to the genesis block.", failed)
		}
		t.Logf("\t%s\tShould link to the genesis block.", success)

		if s.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould leave the mempool empty.", failed)
		}
		t.Logf("\t%s\tShould leave the mempool empty.", success)
	}
}

func Test_LinkInvariant(t *testing.T) {
	t.Log("Given the need to keep blocks linked by hash.")
	{
		chain := mineChain(t, 6)

		for i := 1; i < chain.Len(); i++ {
			if chain[i].PreviousHash != chain[i-1].Hash() {
				t.Fatalf("\t%s\tShould link block %d to its parent.", failed, i+1)
			}
			if chain[i].Index != uint64(i+1) {
				t.Fatalf("\t%s\tShould number block %d correctly: got %d.", failed, i+1, chain[i].Index)
			}
		}
		t.Logf("\t%s\tShould link every block to its parent.", success)

		if err := chain.Validate(testGenesis().Difficulty); err != nil {
			t.Fatalf("\t%s\tShould produce a valid chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould produce a valid chain.", success)
	}
}

func Test_SealBlock(t *testing.T) {
	t.Log("Given the need to seal the mempool into a block.")
	{
		s := newState(t, nil)

		testID := 0
		t.Logf("\tTest %d:\tWhen sealing with an explicit previous hash.", testID)
		{
			s.AddTransaction(database.NewTx("a", "b", 1))
			s.AddTransaction(database.NewTx("b", "c", 2))

			block := s.SealBlock(12345, "custom")
			if block.PreviousHash != "custom" || block.Proof != 12345 {
				t.Fatalf("\t%s\tTest %d:\tShould use the given proof and previous hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould use the given proof and previous hash.", success, testID)

			if len(block.Transactions) != 2 || block.Transactions[0].Amount != 1 || block.Transactions[1].Amount != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the transactions in order: %v", failed, testID, block.Transactions)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the transactions in order.", success, testID)

			s.AddTransaction(database.NewTx("c", "d", 3))
			if len(block.Transactions) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould not see transactions added after the seal.", failed, testID)
			}
			if s.QueryMempoolLength() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep new transactions for the next block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep new transactions for the next block.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen sealing without a previous hash.", testID)
		{
			latest := s.RetrieveLatestBlock()
			block := s.SealBlock(1, "")

			if block.PreviousHash != latest.Hash() || block.Index != latest.Index+1 {
				t.Fatalf("\t%s\tTest %d:\tShould link to the latest block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould link to the latest block.", success, testID)
		}
	}
}

func Test_ConcurrentSeal(t *testing.T) {
	const writers = 4
	const perWriter = 200

	t.Log("Given the need to seal blocks while transactions arrive.")
	{
		s := newState(t, nil)

		var wg sync.WaitGroup
		wg.Add(writers)
		for w := 0; w < writers; w++ {
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					s.AddTransaction(database.NewTx("a", "b", 1))
				}
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

	loop:
		for {
			select {
			case <-done:
				break loop
			default:
				s.SealBlock(0, "")
			}
		}
		s.SealBlock(0, "")

		var total int
		for _, block := range s.RetrieveChain() {
			total += len(block.Transactions)
		}

		if total != writers*perWriter {
			t.Logf("\t%s\tgot: %d", failed, total)
			t.Logf("\t%s\texp: %d", failed, writers*perWriter)
			t.Fatalf("\t%s\tShould commit every transaction exactly once.", failed)
		}
		t.Logf("\t%s\tShould commit every transaction exactly once.", success)
	}
}

func Test_MineCancel(t *testing.T) {
	t.Log("Given the need to cancel mining.")
	{
		s := newState(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := s.MineNewBlock(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould get back a cancelled error: %v", failed, err)
		}
		if s.QueryChainLength() != 1 {
			t.Fatalf("\t%s\tShould not change the chain.", failed)
		}
		t.Logf("\t%s\tShould not change the chain.", success)
	}
}

func Test_ChainChangedDuringMining(t *testing.T) {
	longer := mineChain(t, 4)

	gen := testGenesis()
	gen.Date = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	otherGenesis := database.Chain{database.NewGenesisBlock(gen)}

	// A proof only depends on the proof before it, so the proof a fresh
	// chain will find is known up front.
	proof, err := pow.Solve(context.Background(), genesis.DefaultProof, testGenesis().Difficulty, nil)
	ifErrFailNow(t, err)

	type table struct {
		name        string
		replacement database.Chain
		stillValid  bool
	}

	tt := []table{
		{name: "proof-rejected", replacement: longer, stillValid: false},
		{name: "proof-still-valid", replacement: otherGenesis, stillValid: true},
	}

	t.Log("Given the need to seal only proofs that solve the current latest block.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				tail := tst.replacement[len(tst.replacement)-1]
				if pow.IsValidProof(tail.Proof, proof, testGenesis().Difficulty) != tst.stillValid {
					t.Fatalf("\t%s\tTest %d:\tShould start from a replacement whose tail accepts the proof: %v.", failed, testID, tst.stillValid)
				}

				// The chain is replaced the moment the search finds its proof,
				// before the block is sealed.
				var s *state.State
				var once sync.Once
				ev := func(v string, args ...any) {
					if s == nil || !strings.HasPrefix(v, "pow: Solve: MINING: SOLVED") {
						return
					}
					once.Do(func() {
						if err := s.ReplaceChain(tst.replacement); err != nil {
							t.Errorf("\t%s\tTest %d:\tShould be able to replace the chain: %v", failed, testID, err)
						}
					})
				}

				var err error
				s, err = state.New(state.Config{
					NodeID:    nodeID,
					Host:      "localhost:9080",
					Genesis:   testGenesis(),
					Fetcher:   &fetcher{},
					EvHandler: ev,
				})
				ifErrFailNow(t, err)

				userTx := database.NewTx("alice", "bob", 5)
				s.AddTransaction(userTx)

				t.Logf("\tTest %d:\tWhen the chain is replaced while mining: %s.", testID, tst.name)
				{
					block, err := s.MineNewBlock(context.Background())

					if !tst.stillValid {
						if !errors.Is(err, state.ErrChainChanged) {
							t.Fatalf("\t%s\tTest %d:\tShould get back a chain changed error: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould get back a chain changed error.", success, testID)

						if s.QueryChainLength() != tst.replacement.Len() || s.RetrieveLatestBlock().Hash() != tail.Hash() {
							t.Fatalf("\t%s\tTest %d:\tShould keep the replaced chain: length[%d]", failed, testID, s.QueryChainLength())
						}
						t.Logf("\t%s\tTest %d:\tShould keep the replaced chain.", success, testID)

						mempool := s.RetrieveMempool()
						if len(mempool) != 1 || mempool[0] != userTx {
							t.Fatalf("\t%s\tTest %d:\tShould keep only the user transaction pending: %v", failed, testID, mempool)
						}
						t.Logf("\t%s\tTest %d:\tShould keep only the user transaction pending, with no reward.", success, testID)
						return
					}

					ifErrFailNow(t, err)
					if block.Index != 2 || block.PreviousHash != tail.Hash() || block.Proof != proof {
						t.Fatalf("\t%s\tTest %d:\tShould seal on top of the new tail: %+v", failed, testID, block)
					}
					t.Logf("\t%s\tTest %d:\tShould seal on top of the new tail.", success, testID)

					if len(block.Transactions) != 2 || block.Transactions[0] != userTx || block.Transactions[1].Recipient != nodeID {
						t.Fatalf("\t%s\tTest %d:\tShould seal the user transaction and the reward: %v", failed, testID, block.Transactions)
					}
					if s.QueryChainLength() != 2 || s.QueryMempoolLength() != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould commit the block and empty the mempool.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould commit the block and empty the mempool.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_RegisterPeer(t *testing.T) {
	t.Log("Given the need to register peers.")
	{
		s := newState(t, nil)

		added, err := s.RegisterPeer("http://127.0.0.1:5001")
		if err != nil || !added {
			t.Fatalf("\t%s\tShould be able to add a peer: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to add a peer.", success)

		added, err = s.RegisterPeer("http://127.0.0.1:5001/some/path")
		if err != nil || added {
			t.Fatalf("\t%s\tShould not add the same host twice: %v", failed, err)
		}
		t.Logf("\t%s\tShould not add the same host twice.", success)

		added, err = s.RegisterPeer("http://localhost:9080")
		if err != nil || added {
			t.Fatalf("\t%s\tShould not add this node: %v", failed, err)
		}
		t.Logf("\t%s\tShould not add this node.", success)

		if _, err := s.RegisterPeer(""); !errors.Is(err, peer.ErrInvalidAddress) {
			t.Fatalf("\t%s\tShould reject an empty address: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an empty address.", success)

		peers := s.RetrieveKnownPeers()
		if len(peers) != 1 || peers[0].Host != "127.0.0.1:5001" {
			t.Fatalf("\t%s\tShould have the one peer: %v", failed, peers)
		}
		t.Logf("\t%s\tShould have the one peer.", success)
	}
}

func Test_ResolveConflicts(t *testing.T) {
	local := mineChain(t, 3)
	long := mineChain(t, 5)

	invalid := mineChain(t, 6)
	invalid[3].PreviousHash = invalid[1].Hash()

	type table struct {
		name      string
		responses map[string]peer.ChainResponse
		errors    map[string]error
		replaced  bool
		expLength int
	}

	tt := []table{
		{
			name: "equal-and-shorter",
			responses: map[string]peer.ChainResponse{
				"peer1:9080": response(mineChain(t, 3)),
				"peer2:9080": response(mineChain(t, 2)),
			},
			replaced:  false,
			expLength: 3,
		},
		{
			name: "longer-valid",
			responses: map[string]peer.ChainResponse{
				"peer1:9080": response(long),
			},
			replaced:  true,
			expLength: 5,
		},
		{
			name: "longer-invalid",
			responses: map[string]peer.ChainResponse{
				"peer1:9080": response(invalid),
			},
			replaced:  false,
			expLength: 3,
		},
		{
			name: "longest-invalid-skipped",
			responses: map[string]peer.ChainResponse{
				"peer1:9080": response(invalid),
				"peer2:9080": response(long),
				"peer3:9080": response(mineChain(t, 4)),
			},
			replaced:  true,
			expLength: 5,
		},
		{
			name: "unreachable",
			responses: map[string]peer.ChainResponse{
				"peer2:9080": response(long),
			},
			errors: map[string]error{
				"peer1:9080": errors.New("connection refused"),
			},
			replaced:  true,
			expLength: 5,
		},
		{
			name: "lying-length",
			responses: map[string]peer.ChainResponse{
				"peer1:9080": {Chain: local, Length: 10},
			},
			replaced:  false,
			expLength: 3,
		},
	}

	t.Log("Given the need to resolve conflicts with peers.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s peers.", testID, tst.name)
			{
				f := func(t *testing.T) {
					ftr := fetcher{responses: tst.responses, errors: tst.errors}
					s := newState(t, &ftr)

					w := worker{}
					s.Worker = &w

					ifErrFailNow(t, s.ReplaceChain(local))
					w.cancels = 0

					for host := range tst.responses {
						s.RegisterPeer(host)
					}
					for host := range tst.errors {
						s.RegisterPeer(host)
					}

					replaced, err := s.ResolveConflicts(context.Background())
					ifErrFailNow(t, err)

					if replaced != tst.replaced {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, replaced)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.replaced)
						t.Fatalf("\t%s\tTest %d:\tShould get the right replaced result.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the right replaced result.", success, testID)

					chain := s.RetrieveChain()
					if chain.Len() != tst.expLength {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, chain.Len())
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.expLength)
						t.Fatalf("\t%s\tTest %d:\tShould end with the right chain length.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould end with the right chain length.", success, testID)

					exp := local
					if tst.replaced {
						exp = long
					}
					if chain[chain.Len()-1].Hash() != exp[exp.Len()-1].Hash() {
						t.Fatalf("\t%s\tTest %d:\tShould end with the right chain.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould end with the right chain.", success, testID)

					if tst.replaced && w.cancels != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould signal mining to cancel: got %d.", failed, testID, w.cancels)
					}
					if ftr.calls != len(tst.responses)+len(tst.errors) {
						t.Fatalf("\t%s\tTest %d:\tShould ask every peer once: got %d.", failed, testID, ftr.calls)
					}
					t.Logf("\t%s\tTest %d:\tShould ask every peer once.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_QueryBlocksByIndex(t *testing.T) {
	t.Log("Given the need to query blocks by index.")
	{
		s := newState(t, nil)
		ifErrFailNow(t, s.ReplaceChain(mineChain(t, 4)))

		if blocks := s.QueryBlocksByIndex(2, 3); len(blocks) != 2 || blocks[0].Index != 2 {
			t.Fatalf("\t%s\tShould get blocks 2 and 3: %v", failed, blocks)
		}
		t.Logf("\t%s\tShould get blocks 2 and 3.", success)

		if blocks := s.QueryBlocksByIndex(state.QueryLatest, state.QueryLatest); len(blocks) != 1 || blocks[0].Index != 4 {
			t.Fatalf("\t%s\tShould get the latest block: %v", failed, blocks)
		}
		t.Logf("\t%s\tShould get the latest block.", success)

		if blocks := s.QueryBlocksByIndex(3, 100); len(blocks) != 2 {
			t.Fatalf("\t%s\tShould stop at the latest block: %v", failed, blocks)
		}
		t.Logf("\t%s\tShould stop at the latest block.", success)
	}
}

func Test_HTTPFetcher(t *testing.T) {
	long := mineChain(t, 5)

	valid, err := json.Marshal(response(long))
	ifErrFailNow(t, err)

	lying, err := json.Marshal(peer.ChainResponse{Chain: long, Length: 7})
	ifErrFailNow(t, err)

	type table struct {
		name     string
		status   int
		body     []byte
		fetchErr bool
		replaced bool
	}

	tt := []table{
		{name: "longer-valid", status: http.StatusOK, body: valid, replaced: true},
		{name: "accepted-status", status: http.StatusAccepted, body: valid, fetchErr: true},
		{name: "server-error", status: http.StatusInternalServerError, body: []byte("boom"), fetchErr: true},
		{name: "truncated-body", status: http.StatusOK, body: []byte(`{"chain": "nope"`), fetchErr: true},
		{name: "length-mismatch", status: http.StatusOK, body: lying},
	}

	t.Log("Given the need to fetch peer chains over the node API.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				mux := http.NewServeMux()
				mux.HandleFunc("/v1/node/chain", func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(tst.status)
					w.Write(tst.body)
				})
				srv := httptest.NewServer(mux)
				defer srv.Close()

				u, err := url.Parse(srv.URL)
				ifErrFailNow(t, err)

				t.Logf("\tTest %d:\tWhen the peer answers with %s.", testID, tst.name)
				{
					_, err := state.NewHTTPFetcher().FetchChain(context.Background(), peer.New(u.Host))
					if (err != nil) != tst.fetchErr {
						t.Fatalf("\t%s\tTest %d:\tShould get a fetch error %v: %v", failed, testID, tst.fetchErr, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get a fetch error %v.", success, testID, tst.fetchErr)

					s := newState(t, nil)
					if _, err := s.RegisterPeer(srv.URL); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to register the peer: %v", failed, testID, err)
					}

					replaced, err := s.ResolveConflicts(context.Background())
					ifErrFailNow(t, err)

					expLength := 1
					if tst.replaced {
						expLength = long.Len()
					}

					if replaced != tst.replaced || s.QueryChainLength() != expLength {
						t.Logf("\t%s\tTest %d:\tgot: replaced[%v] length[%d]", failed, testID, replaced, s.QueryChainLength())
						t.Logf("\t%s\tTest %d:\texp: replaced[%v] length[%d]", failed, testID, tst.replaced, expLength)
						t.Fatalf("\t%s\tTest %d:\tShould resolve to the expected chain.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould resolve to the expected chain.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}
