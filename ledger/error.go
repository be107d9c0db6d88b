package ledger

import (
	"fmt"

	"github.com/canopy-network/dualledger/lib"
)

func ErrInvalidTxFormat(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidTxFormat, lib.LedgerModule, fmt.Sprintf("invalid transaction format: %s", reason))
}

func ErrEmptyTransaction() lib.ErrorI {
	return lib.NewError(lib.CodeEmptyTransaction, lib.LedgerModule, "transaction has no operations")
}

func ErrInvalidOperation(opType, reason string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidOperation, lib.LedgerModule, fmt.Sprintf("invalid %s operation: %s", opType, reason))
}

func ErrInputNotFound(sid uint64) lib.ErrorI {
	return lib.NewError(lib.CodeInputNotFound, lib.LedgerModule, fmt.Sprintf("input txo %d not found", sid))
}

func ErrInputAlreadySpent(sid uint64) lib.ErrorI {
	return lib.NewError(lib.CodeInputAlreadySpent, lib.LedgerModule, fmt.Sprintf("input txo %d already spent", sid))
}

func ErrUnbalancedTransfer(asset string, in, out uint64) lib.ErrorI {
	return lib.NewError(lib.CodeUnbalancedTransfer, lib.LedgerModule, fmt.Sprintf("asset %s inputs %d != outputs %d", asset, in, out))
}

func ErrAssetExists(asset string) lib.ErrorI {
	return lib.NewError(lib.CodeAssetExists, lib.LedgerModule, fmt.Sprintf("asset %s already defined", asset))
}

func ErrAssetNotFound(asset string) lib.ErrorI {
	return lib.NewError(lib.CodeAssetNotFound, lib.LedgerModule, fmt.Sprintf("asset %s not defined", asset))
}

func ErrNoOpenBlock() lib.ErrorI {
	return lib.NewError(lib.CodeNoOpenBlock, lib.LedgerModule, "no block is open")
}

func ErrBlockAlreadyOpen() lib.ErrorI {
	return lib.NewError(lib.CodeBlockAlreadyOpen, lib.LedgerModule, "a block is already open")
}

func ErrInvalidEthTx(err error) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidEthTx, lib.LedgerModule, fmt.Sprintf("invalid evm transaction: %s", err.Error()))
}

func ErrWrongChainId(got, expected uint64) lib.ErrorI {
	return lib.NewError(lib.CodeWrongChainId, lib.LedgerModule, fmt.Sprintf("chain id %d != expected %d", got, expected))
}

func ErrInvalidNonce(got, expected uint64) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidNonce, lib.LedgerModule, fmt.Sprintf("nonce %d != expected %d", got, expected))
}

func ErrInsufficientFunds(balance, needed uint64) lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientFunds, lib.LedgerModule, fmt.Sprintf("balance %d is below %d", balance, needed))
}

func ErrUnsupportedEthTx(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeUnsupportedEthTx, lib.LedgerModule, fmt.Sprintf("unsupported evm transaction: %s", reason))
}

func ErrInvalidAddress(addr []byte) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidAddress, lib.LedgerModule, fmt.Sprintf("invalid address %x", addr))
}

func ErrOverflow() lib.ErrorI {
	return lib.NewError(lib.CodeOverflow, lib.LedgerModule, "amount overflow")
}

func ErrTxAlreadyApplied(hash []byte) lib.ErrorI {
	return lib.NewError(lib.CodeTxAlreadyApplied, lib.LedgerModule, fmt.Sprintf("transaction %x already applied", hash))
}
