// Package signer delegates transaction signing to an external custody
// service. The engine never holds private keys.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxPayload is the unsigned transaction material handed to the custody
// service.
type TxPayload struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	Value    string         `json:"value"` // decimal wei string
	GasLimit uint64         `json:"gas_limit"`
	ChainID  uint64         `json:"chain_id"`
}

// SignedTx is the custody service's response.
type SignedTx struct {
	Raw  hexutil.Bytes `json:"raw"`
	Hash common.Hash   `json:"hash"`
}

// Signer signs a transaction payload on behalf of a user.
type Signer interface {
	Sign(ctx context.Context, userID string, payload TxPayload) (*SignedTx, error)
}
