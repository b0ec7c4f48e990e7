package public

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/openchain/blockchain/foundation/blockchain/database"
	"github.com/openchain/blockchain/foundation/blockchain/index"
)

type blockSummary struct {
	index.Record
	SignerName string `json:"signer_name"`
}

type block struct {
	Address    string        `json:"address"`
	Nonce      uint64        `json:"nonce"`
	TimeStamp  string        `json:"timestamp"`
	TotalSize  uint64        `json:"total_size"`
	Signer     string        `json:"signer"`
	SignerName string        `json:"signer_name"`
	PublicKey  hexutil.Bytes `json:"public_key"`
	Signature  hexutil.Bytes `json:"signature"`
	Payload    hexutil.Bytes `json:"payload"`
	Valid      bool          `json:"valid"`
}

func toBlock(address string, b database.Block, signerName string, valid bool) block {
	return block{
		Address:    address,
		Nonce:      b.Header.Nonce,
		TimeStamp:  b.Header.TimeStamp,
		TotalSize:  b.Header.TotalSize,
		Signer:     b.Signer(),
		SignerName: signerName,
		PublicKey:  b.Header.PublicKey,
		Signature:  b.Header.Signature,
		Payload:    b.Payload,
		Valid:      valid,
	}
}

// MineRequest is the document accepted to mine a new block with an account
// from the node's profile.
type MineRequest struct {
	Account string `json:"account" validate:"required,max=64"`
	Payload string `json:"payload" validate:"required"`
}

type mined struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Shared  int    `json:"shared"`
}
