package controller

import (
	"fmt"

	"github.com/canopy-network/dualledger/lib"
)

func ErrUnknownTransaction() lib.ErrorI {
	return lib.NewError(lib.CodeUnknownTransaction, lib.ControllerModule, "unknown transaction format")
}

func ErrEVMDisabled() lib.ErrorI {
	return lib.NewError(lib.CodeEVMDisabled, lib.ControllerModule, "EVM is disabled")
}

func ErrHistoricalTx(hash []byte) lib.ErrorI {
	return lib.NewError(lib.CodeHistoricalTx, lib.ControllerModule, fmt.Sprintf("historical transaction %s", lib.BytesToString(hash)))
}

func ErrNotAllowedInABCI() lib.ErrorI {
	return lib.NewError(lib.CodeNotAllowedInABCI, lib.ControllerModule, "transaction carries operations reserved for the node")
}

func ErrStatusWrite(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStatusWrite, lib.ControllerModule, fmt.Sprintf("status write failed with err: %s", err.Error()))
}

func ErrConvertFailed(err error) lib.ErrorI {
	return lib.NewError(lib.CodeConvertFailed, lib.ControllerModule, fmt.Sprintf("account conversion failed with err: %s", err.Error()))
}

func ErrBlockInProgress() lib.ErrorI {
	return lib.NewError(lib.CodeBlockInProgress, lib.ControllerModule, "a block phase is in progress, try again")
}

func ErrNoStatus() lib.ErrorI {
	return lib.NewError(lib.CodeNoStatus, lib.ControllerModule, "nothing has been committed yet")
}
