package rpc

import (
	"fmt"

	"github.com/canopy-network/dualledger/lib"
)

func ErrServerTimeout() lib.ErrorI {
	return lib.NewError(lib.CodeServerTimeout, lib.RPCModule, "server timeout")
}

func ErrInvalidParams(param string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidParams, lib.RPCModule, fmt.Sprintf("invalid params: %q", param))
}

func ErrNotReady() lib.ErrorI {
	return lib.NewError(lib.CodeNotReady, lib.RPCModule, "no committed status yet")
}

func ErrTxNotFound(hash []byte) lib.ErrorI {
	return lib.NewError(lib.CodeTxNotFound, lib.RPCModule, fmt.Sprintf("transaction %s not found", lib.BytesToString(hash)))
}

func ErrGetRequest(err error) lib.ErrorI {
	return lib.NewError(lib.CodeGetRequest, lib.RPCModule, fmt.Sprintf("http.Get() failed with err: %s", err.Error()))
}

func ErrHttpStatus(status string, statusCode int, body []byte) lib.ErrorI {
	return lib.NewError(lib.CodeHttpStatus, lib.RPCModule, fmt.Sprintf("http response bad status %s with code %d and body %s", status, statusCode, body))
}

func ErrReadBody(err error) lib.ErrorI {
	return lib.NewError(lib.CodeReadBody, lib.RPCModule, fmt.Sprintf("io.ReadAll(http.ResponseBody) failed with err: %s", err.Error()))
}
