package rpc

import (
	"net/http"

	"github.com/canopy-network/dualledger/lib"
	"github.com/julienschmidt/httprouter"
)

// TxResponse is the answer to a fingerprint lookup
type TxResponse struct {
	Hash   lib.HexBytes `json:"hash"`
	Height int64        `json:"height"`
}

// HealthResponse reports liveness and the block phase
type HealthResponse struct {
	Height         int64 `json:"height"`
	InSafeInterval bool  `json:"inSafeInterval"`
}

// Status() returns the cached status of the last commit
func (s *Server) Status(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	status := s.status.Load()
	if status == nil {
		write(w, ErrNotReady(), http.StatusServiceUnavailable)
		return
	}
	write(w, status, http.StatusOK)
}

// Transaction() reports the height a native transaction fingerprint was recorded at
func (s *Server) Transaction(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	hash, err := lib.StringToBytes(p.ByName("hash"))
	if err != nil || len(hash) == 0 {
		write(w, ErrInvalidParams(p.ByName("hash")), http.StatusBadRequest)
		return
	}
	height, found, err := s.history.Lookup(hash)
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	if !found {
		write(w, ErrTxNotFound(hash), http.StatusNotFound)
		return
	}
	write(w, TxResponse{Hash: hash, Height: height}, http.StatusOK)
}

// Health() is always answered, even while a block is being processed
func (s *Server) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, HealthResponse{Height: s.node.Height(), InSafeInterval: s.node.InSafeInterval()}, http.StatusOK)
}
