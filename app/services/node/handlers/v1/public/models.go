package public

import "github.com/ardanlabs/powledger/foundation/blockchain/database"

// newTx is what a client posts to add a transaction. Amount is a pointer so
// a zero amount can be told apart from a missing one.
type newTx struct {
	Sender    string   `json:"sender" validate:"required"`
	Recipient string   `json:"recipient" validate:"required"`
	Amount    *float64 `json:"amount" validate:"required"`
}

type txAdded struct {
	Message string `json:"message"`
	Index   uint64 `json:"index"`
}

type blockForged struct {
	Message      string        `json:"message"`
	Index        uint64        `json:"index"`
	Transactions []database.Tx `json:"transactions"`
	Proof        uint64        `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

type chain struct {
	Chain  database.Chain `json:"chain"`
	Length int            `json:"length"`
}

type newNodes struct {
	Nodes []string `json:"nodes" validate:"required,min=1,dive,required"`
}

type nodesAdded struct {
	Message    string   `json:"message"`
	TotalNodes []string `json:"total_nodes"`
}

type resolved struct {
	Message  string         `json:"message"`
	Replaced bool           `json:"replaced"`
	Chain    database.Chain `json:"chain"`
}
