package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/canopy-network/dualledger/controller"
	"github.com/canopy-network/dualledger/lib"
	"github.com/cenkalti/backoff/v4"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

const (
	colon = ":"

	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"
	localhost       = "localhost"
)

// NodeI is the part of the controller the query server reads
type NodeI interface {
	Height() int64
	InSafeInterval() bool
	BlockSignal() *lib.BlockSignal
	Status() (*controller.Status, lib.ErrorI)
}

// HistoryI looks up delivered transaction fingerprints
type HistoryI interface {
	Lookup(fingerprint []byte) (height int64, found bool, err lib.ErrorI)
}

/*
Server is the read only query RPC.

It never takes the ledger lock on a request path: the committed status is cached, and the cache is
refreshed in the background after every new block signal, with a non blocking read of the controller
that's retried until the block phase holding the lock has finished.
*/
type Server struct {
	node    NodeI
	history HistoryI
	config  lib.Config
	status  atomic.Pointer[controller.Status]
	logger  lib.LoggerI
}

// NewServer() constructs and returns a new query RPC server
func NewServer(node NodeI, history HistoryI, config lib.Config, logger lib.LoggerI) *Server {
	return &Server{
		node:    node,
		history: history,
		config:  config,
		logger:  lib.WithPrefix(logger, "rpc"),
	}
}

// Start() serves the query RPC until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	go s.refreshStatus()
	// Create CORS policy
	cor := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})
	// Create a default timeout for HTTP requests
	timeout := time.Duration(s.config.TimeoutS) * time.Second
	server := &http.Server{
		Addr:    colon + s.config.RPCPort,
		Handler: cor.Handler(http.TimeoutHandler(createRouter(s), timeout, ErrServerTimeout().Error())),
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()
	s.logger.Infof("Starting RPC server at 0.0.0.0:%s", s.config.RPCPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// refreshStatus() reloads the cached status once at start and then after every new block
func (s *Server) refreshStatus() {
	s.loadStatus()
	for s.node.BlockSignal().Wait() {
		s.loadStatus()
	}
}

// loadStatus() retries the non blocking status read until the controller lets go of the ledger
func (s *Server) loadStatus() {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	err := backoff.Retry(func() error {
		status, err := s.node.Status()
		if err != nil {
			// nothing to wait for before the first commit
			if err.Code() == lib.CodeNoStatus {
				return backoff.Permanent(err)
			}
			return err
		}
		s.status.Store(status)
		return nil
	}, policy)
	if err != nil {
		s.logger.Debugf("Status refresh skipped: %s", err.Error())
	}
}

// write marshaled payload to w
func write(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}

// handler is the shape of every route
type handler = func(w http.ResponseWriter, r *http.Request, p httprouter.Params)
