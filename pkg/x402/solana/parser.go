// Package solana verifies x402 payment proofs against the Solana chain:
// fetching transactions, extracting SPL token transfers, matching them
// against payment requirements, and consuming the replay cache.
package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// MintUnknown marks a transfer whose mint could not be recovered from
// token balance metadata. The matcher treats unknown mints permissively.
const MintUnknown = "unknown"

// Transfer is one SPL token transfer extracted from a transaction, in
// execution order.
type Transfer struct {
	Source      string // token account debited
	Destination string // token account credited
	Authority   string // signing owner or delegate
	Amount      uint64 // smallest unit
	Mint        string // token mint, or MintUnknown
}

// ExtractTransfers walks a fetched transaction's outer and inner
// instructions in execution order and returns every SPL token transfer.
// Instructions belonging to other programs, and token instructions other
// than Transfer and TransferChecked, are skipped.
func ExtractTransfers(res *rpc.GetTransactionResult) ([]Transfer, error) {
	if res == nil || res.Transaction == nil {
		return nil, fmt.Errorf("transaction result is empty")
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	keys := accountKeys(tx, res.Meta)

	var transfers []Transfer
	for outerIdx, inst := range tx.Message.Instructions {
		if t, ok := decodeTransfer(inst, keys, res.Meta); ok {
			transfers = append(transfers, t)
		}
		if res.Meta == nil {
			continue
		}
		for _, inner := range res.Meta.InnerInstructions {
			if int(inner.Index) != outerIdx {
				continue
			}
			for _, innerInst := range inner.Instructions {
				if t, ok := decodeTransfer(compiledFromRPC(innerInst), keys, res.Meta); ok {
					transfers = append(transfers, t)
				}
			}
		}
	}

	return transfers, nil
}

// accountKeys resolves the full account key table: the message's static
// keys followed by any address-table lookups recorded in the metadata.
// Legacy messages simply have no loaded addresses.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if meta != nil {
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	}
	return keys
}

// compiledFromRPC converts the RPC metadata's inner-instruction shape to
// the transaction message's. The field layouts are identical; the types
// are distinct.
func compiledFromRPC(inst rpc.CompiledInstruction) solana.CompiledInstruction {
	return solana.CompiledInstruction{
		ProgramIDIndex: inst.ProgramIDIndex,
		Accounts:       inst.Accounts,
		Data:           inst.Data,
	}
}

// decodeTransfer decodes a compiled instruction as an SPL Transfer or
// TransferChecked. Returns false for anything else.
func decodeTransfer(inst solana.CompiledInstruction, keys []solana.PublicKey, meta *rpc.TransactionMeta) (Transfer, bool) {
	if int(inst.ProgramIDIndex) >= len(keys) {
		return Transfer{}, false
	}
	if !keys[inst.ProgramIDIndex].Equals(solana.TokenProgramID) {
		return Transfer{}, false
	}
	if len(inst.Data) < 9 {
		return Transfer{}, false
	}

	discriminator := inst.Data[0]
	checked := discriminator == token.Instruction_TransferChecked
	if discriminator != token.Instruction_Transfer && !checked {
		return Transfer{}, false
	}

	minAccounts := 3
	if checked {
		minAccounts = 4
	}
	if len(inst.Accounts) < minAccounts {
		return Transfer{}, false
	}
	for _, idx := range inst.Accounts[:minAccounts] {
		if int(idx) >= len(keys) {
			return Transfer{}, false
		}
	}

	t := Transfer{
		Source:      keys[inst.Accounts[0]].String(),
		Destination: keys[inst.Accounts[1]].String(),
		Authority:   keys[inst.Accounts[2]].String(),
		Amount:      binary.LittleEndian.Uint64(inst.Data[1:9]),
	}

	if checked {
		t.Mint = keys[inst.Accounts[3]].String()
	} else {
		t.Mint = recoverMint(inst.Accounts[1], meta)
	}
	return t, true
}

// recoverMint looks up the destination account in pre/post token balance
// metadata. Plain Transfer instructions do not carry the mint themselves.
func recoverMint(destIndex uint16, meta *rpc.TransactionMeta) string {
	if meta == nil {
		return MintUnknown
	}
	for _, tb := range meta.PostTokenBalances {
		if tb.AccountIndex == destIndex {
			return tb.Mint.String()
		}
	}
	for _, tb := range meta.PreTokenBalances {
		if tb.AccountIndex == destIndex {
			return tb.Mint.String()
		}
	}
	return MintUnknown
}
