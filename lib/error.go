package lib

import (
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // Returns the error code
	Module() ErrorModule // Returns the error module
	error                // Implements the built-in error interface
}

var _ ErrorI = &Error{} // Ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	// Constructs a new Error instance
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeJSONMarshal     ErrorCode = 1
	CodeJSONUnmarshal   ErrorCode = 2
	CodeUnmarshal       ErrorCode = 3
	CodeMarshal         ErrorCode = 4
	CodeStringToBytes   ErrorCode = 5
	CodeReadFile        ErrorCode = 6
	CodeWriteFile       ErrorCode = 7
	CodePanic           ErrorCode = 8
	CodeInvalidArgument ErrorCode = 9
	CodeInvalidWindow   ErrorCode = 10

	// Ledger Module
	LedgerModule ErrorModule = "ledger"

	// Ledger Module Error Codes
	CodeInvalidTxFormat    ErrorCode = 1
	CodeEmptyTransaction   ErrorCode = 2
	CodeInvalidOperation   ErrorCode = 3
	CodeInputNotFound      ErrorCode = 4
	CodeInputAlreadySpent  ErrorCode = 5
	CodeUnbalancedTransfer ErrorCode = 6
	CodeAssetExists        ErrorCode = 7
	CodeAssetNotFound      ErrorCode = 8
	CodeNoOpenBlock        ErrorCode = 9
	CodeBlockAlreadyOpen   ErrorCode = 10
	CodeInvalidEthTx       ErrorCode = 11
	CodeWrongChainId       ErrorCode = 12
	CodeInvalidNonce       ErrorCode = 13
	CodeInsufficientFunds  ErrorCode = 14
	CodeUnsupportedEthTx   ErrorCode = 15
	CodeSessionNotOpen     ErrorCode = 16
	CodeInvalidAddress     ErrorCode = 17
	CodeOverflow           ErrorCode = 18
	CodeTxAlreadyApplied   ErrorCode = 19

	// Controller Module
	ControllerModule ErrorModule = "controller"

	// Controller Module Error Codes
	CodeUnknownTransaction ErrorCode = 1
	CodeEVMDisabled        ErrorCode = 2
	CodeHistoricalTx       ErrorCode = 3
	CodeNotAllowedInABCI   ErrorCode = 4
	CodeStatusWrite        ErrorCode = 5
	CodeConvertFailed      ErrorCode = 6
	CodeBlockInProgress    ErrorCode = 7
	CodeNoStatus           ErrorCode = 8

	// History Module
	HistoryModule ErrorModule = "history"

	// History Module Error Codes
	CodeHistoryClosed ErrorCode = 1
	CodeHistoryWrite  ErrorCode = 2

	// Storage Module
	StorageModule ErrorModule = "store"

	// Storage Module Error Codes
	CodeOpenDB      ErrorCode = 1
	CodeCloseDB     ErrorCode = 2
	CodeStoreSet    ErrorCode = 3
	CodeStoreGet    ErrorCode = 4
	CodeStoreDelete ErrorCode = 5
	CodeCommitDB    ErrorCode = 6
	CodeFlushDB     ErrorCode = 7
	CodeSnapshot    ErrorCode = 8

	// RPC Module
	RPCModule ErrorModule = "rpc"

	// RPC Module Error Codes
	CodeServerTimeout ErrorCode = 1
	CodeInvalidParams ErrorCode = 2
	CodeNotReady      ErrorCode = 3
	CodeTxNotFound    ErrorCode = 4
	CodeGetRequest    ErrorCode = 5
	CodeHttpStatus    ErrorCode = 6
	CodeReadBody      ErrorCode = 7
)

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrStringToBytes(err error) ErrorI {
	return NewError(CodeStringToBytes, MainModule, fmt.Sprintf("stringToBytes() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrPanic() ErrorI {
	return NewError(CodePanic, MainModule, "panic recovery")
}

func ErrInvalidArgument(msg string) ErrorI {
	return NewError(CodeInvalidArgument, MainModule, fmt.Sprintf("invalid argument: %s", msg))
}

func ErrInvalidWindow(disable, enable int64) ErrorI {
	return NewError(CodeInvalidWindow, MainModule, fmt.Sprintf("invalid evm window: disable height %d is above enable height %d", disable, enable))
}
