package lib

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements dev-ops telemetry for the node in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents a server that exposes Prometheus metrics
type Metrics struct {
	server *http.Server  // the http prometheus server
	config MetricsConfig // the configuration
	log    LoggerI       // the logger

	NodeMetrics    // general telemetry about the node
	ChainMetrics   // height and feature window telemetry
	TxMetrics      // admission and delivery telemetry
	HistoryMetrics // replay history writer telemetry
}

// NodeMetrics represents general telemetry for the node's health
type NodeMetrics struct {
	NodeStatus          prometheus.Gauge     // is the node alive?
	BlockProcessingTime prometheus.Histogram // how long does it take for this node to process a block?
}

// ChainMetrics represents the telemetry of the block lifecycle
type ChainMetrics struct {
	Height      prometheus.Gauge // what's the height of this chain?
	EVMDisabled prometheus.Gauge // is the evm ledger switched off at this height?
	BlockTxs    prometheus.Gauge // how many native transactions are cached in the open block?
}

// TxMetrics represents the telemetry of transaction admission and delivery
type TxMetrics struct {
	Checked   *prometheus.CounterVec // CheckTx results by catalog and code
	Delivered *prometheus.CounterVec // DeliverTx results by catalog and code
}

// HistoryMetrics represents the telemetry of the asynchronous replay history writer
type HistoryMetrics struct {
	QueueDepth    prometheus.Gauge   // entries waiting in the bounded queue
	Spilled       prometheus.Counter // entries that overflowed the queue into the backlog
	Written       prometheus.Counter // entries durably written
	WriteFailures prometheus.Counter // batches dropped after retries were exhausted
	Dropped       prometheus.Counter // entries refused because the backlog was full
}

// NewMetricsServer() creates a new telemetry server
func NewMetricsServer(config MetricsConfig, log LoggerI) *Metrics {
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.Handler())
	return &Metrics{
		server: &http.Server{Addr: config.PrometheusAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		config: config,
		log:    log,
		NodeMetrics: NodeMetrics{
			NodeStatus: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dualledger_node_status",
				Help: "The node is alive and processing blocks",
			}),
			BlockProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
				Name: "dualledger_block_processing_time",
				Help: "Time from BeginBlock to Commit in seconds",
			}),
		},
		ChainMetrics: ChainMetrics{
			Height: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dualledger_height",
				Help: "Current consensus height",
			}),
			EVMDisabled: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dualledger_evm_disabled",
				Help: "1 if the current height is inside the evm-disabled window",
			}),
			BlockTxs: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dualledger_open_block_txs",
				Help: "Native transactions cached in the open block",
			}),
		},
		TxMetrics: TxMetrics{
			Checked: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dualledger_check_tx_total",
				Help: "CheckTx results by transaction catalog and response code",
			}, []string{"catalog", "code"}),
			Delivered: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dualledger_deliver_tx_total",
				Help: "DeliverTx results by transaction catalog and response code",
			}, []string{"catalog", "code"}),
		},
		HistoryMetrics: HistoryMetrics{
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dualledger_history_queue_depth",
				Help: "Replay history entries waiting to be written",
			}),
			Spilled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dualledger_history_spilled_total",
				Help: "Replay history entries that overflowed the bounded queue",
			}),
			Written: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dualledger_history_written_total",
				Help: "Replay history entries durably written",
			}),
			Dropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dualledger_history_dropped_total",
				Help: "Replay history entries refused because the backlog was full",
			}),
			WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dualledger_history_write_failures_total",
				Help: "Replay history batches dropped after retries were exhausted",
			}),
		},
	}
}

// Start() starts the telemetry server
func (m *Metrics) Start() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server is enabled
	if m.config.Enabled {
		go func() {
			m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
			// run the server
			if err := m.server.ListenAndServe(); err != nil {
				if err != http.ErrServerClosed {
					m.log.Errorf("Metrics server failed with err: %s", err.Error())
				}
			}
		}()
	}
}

// Stop() gracefully stops the telemetry server
func (m *Metrics) Stop() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server isn't enabled
	if m.config.Enabled {
		// shutdown the server
		if err := m.server.Shutdown(context.Background()); err != nil {
			m.log.Error(err.Error())
		}
	}
}

// UpdateHeight() is a setter for the chain metrics
func (m *Metrics) UpdateHeight(height int64, evmDisabled bool) {
	// exit if empty
	if m == nil {
		return
	}
	// set node is active
	m.NodeStatus.Set(1)
	// set the height of this chain
	m.Height.Set(float64(height))
	// update the window status
	if evmDisabled {
		m.EVMDisabled.Set(1)
	} else {
		m.EVMDisabled.Set(0)
	}
}

// ObserveBlock() records the time spent between BeginBlock and Commit
func (m *Metrics) ObserveBlock(start time.Time, openBlockTxs int) {
	if m == nil || start.IsZero() {
		return
	}
	m.BlockProcessingTime.Observe(time.Since(start).Seconds())
	m.BlockTxs.Set(float64(openBlockTxs))
}

// ObserveCheckTx() counts an admission result
func (m *Metrics) ObserveCheckTx(catalog string, code uint32) {
	if m == nil {
		return
	}
	m.Checked.WithLabelValues(catalog, codeLabel(code)).Inc()
}

// ObserveDeliverTx() counts a delivery result
func (m *Metrics) ObserveDeliverTx(catalog string, code uint32) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(catalog, codeLabel(code)).Inc()
}

// UpdateHistoryQueue() is a setter for the history queue depth
func (m *Metrics) UpdateHistoryQueue(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// ObserveHistorySpill() counts an entry that overflowed the history queue
func (m *Metrics) ObserveHistorySpill() {
	if m == nil {
		return
	}
	m.Spilled.Inc()
}

// ObserveHistoryDrop() counts an entry refused by a full backlog
func (m *Metrics) ObserveHistoryDrop() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

// ObserveHistoryWrite() counts a finished history batch
func (m *Metrics) ObserveHistoryWrite(entries int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.WriteFailures.Inc()
		return
	}
	m.Written.Add(float64(entries))
}

func codeLabel(code uint32) string {
	switch code {
	case CodeTypeOK:
		return "ok"
	case CodeTypeRejected:
		return "rejected"
	case CodeTypeEVMDisabled:
		return "evm_disabled"
	default:
		return "other"
	}
}
