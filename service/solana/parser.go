package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

// decodeConfirmedTransaction converts a full GetTransactionResult into our
// domain ConfirmedTransaction, flattening the instruction list into
// (programID, accounts, base58 data) tuples. This matches the shape the
// external indexer delivers, so sweep output and indexer notifications
// flow through the same reconciliation path.
func decodeConfirmedTransaction(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (*ConfirmedTransaction, error) {
	txn := &ConfirmedTransaction{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
	}
	if sig.BlockTime != nil {
		txn.BlockTime = sig.BlockTime.Time()
	} else {
		txn.BlockTime = time.Time{}
	}

	if result == nil {
		return nil, fmt.Errorf("transaction result unavailable")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	accountKeys := tx.Message.AccountKeys
	txn.Instructions = make([]DecodedInstruction, 0, len(tx.Message.Instructions))
	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			return nil, fmt.Errorf("program id index %d out of bounds", instruction.ProgramIDIndex)
		}
		decoded := DecodedInstruction{
			ProgramID: accountKeys[instruction.ProgramIDIndex].String(),
			Data:      base58.Encode(instruction.Data),
		}
		for _, accountIndex := range instruction.Accounts {
			if int(accountIndex) < len(accountKeys) {
				decoded.Accounts = append(decoded.Accounts, accountKeys[accountIndex].String())
			}
		}
		txn.Instructions = append(txn.Instructions, decoded)
	}

	return txn, nil
}
