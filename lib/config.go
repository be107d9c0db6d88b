package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
)

/* This file implements logic for 'user controlled' global configurations of each module of the node */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath = "config.json" // the file path for the node configuration
	StatusFilePath = "status.json" // the file path for the commit-time status snapshot
	BackupDirPath  = "backups"     // the directory for incremental database backups
)

// Config is the structure of the user configuration options for a dual ledger node
type Config struct {
	MainConfig       // main options spanning over all modules
	CheckpointConfig // feature activation heights
	StoreConfig      // persistence options
	HistoryConfig    // replay history writer options
	EVMConfig        // evm account ledger options
	StakingConfig    // staking options
	RPCConfig        // rpc API options
	MetricsConfig    // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:       DefaultMainConfig(),
		CheckpointConfig: DefaultCheckpointConfig(),
		StoreConfig:      DefaultStoreConfig(),
		HistoryConfig:    DefaultHistoryConfig(),
		EVMConfig:        DefaultEVMConfig(),
		StakingConfig:    DefaultStakingConfig(),
		RPCConfig:        DefaultRPCConfig(),
		MetricsConfig:    DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel            string `json:"logLevel"`            // any level includes the levels above it: debug < info < warning < error
	KeepHistory         bool   `json:"keepHistory"`         // attach indexable event tags to delivered native transactions (fullnode mode)
	EVMFirstBlockHeight int64  `json:"evmFirstBlockHeight"` // below this height an evm related transaction is unexpected and is reported
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel:            "info", // everything but debug is the default
		KeepHistory:         false,  // validators don't index by default
		EVMFirstBlockHeight: 0,      // no monitoring by default
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// CHECKPOINT CONFIG BELOW

// CheckpointConfig holds the chain-wide activation heights that every node must agree upon
type CheckpointConfig struct {
	DisableEVMBlockHeight int64 `json:"disableEVMBlockHeight"` // the evm ledger is off strictly above this height...
	EnableEVMBlockHeight  int64 `json:"enableEVMBlockHeight"`  // ...and strictly below this one
}

// DefaultCheckpointConfig() returns an empty window: the evm ledger is never disabled
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{}
}

// Window() converts the configured thresholds into a FeatureWindow
func (c CheckpointConfig) Window() (FeatureWindow, ErrorI) {
	return NewFeatureWindow(c.DisableEVMBlockHeight, c.EnableEVMBlockHeight)
}

// STORE CONFIG BELOW

// StoreConfig is user configuration for the key value database
type StoreConfig struct {
	DataDirPath      string `json:"dataDirPath"`      // path of the designated folder where the application stores its data
	DBName           string `json:"dbName"`           // name of the database
	InMemory         bool   `json:"inMemory"`         // non-disk database, only for testing
	MemTableSize     int64  `json:"memTableSize"`     // size of each badger memtable in bytes
	ValueLogFileSize int64  `json:"valueLogFileSize"` // size of each badger value log file in bytes
	BackupInterval   int64  `json:"backupInterval"`   // take an incremental backup every n blocks (0 disables)
}

// DefaultDataDirPath() is $USERHOME/.dualledger
func DefaultDataDirPath() string {
	// get the user home
	home, err := os.UserHomeDir()
	// if unable to get the user home
	if err != nil {
		// fatal error
		panic(err)
	}
	// exit with full default data directory path
	return filepath.Join(home, ".dualledger")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath:      DefaultDataDirPath(),
		DBName:           "ledger",
		InMemory:         false,
		MemTableSize:     int64(64 * units.MiB),
		ValueLogFileSize: int64(256 * units.MiB),
		BackupInterval:   0,
	}
}

// HISTORY CONFIG BELOW

// HistoryConfig tunes the asynchronous writer of the replay history
type HistoryConfig struct {
	QueueSize       int    `json:"queueSize"`       // capacity of the bounded write queue
	FlushSize       int    `json:"flushSize"`       // entries per batch before an early flush
	FlushIntervalMS uint64 `json:"flushIntervalMS"` // maximum time an entry waits in the writer
	MaxRetryMS      uint64 `json:"maxRetryMS"`      // total time a failed batch is retried before it's dropped
	MaxBacklog      int    `json:"maxBacklog"`      // entries held beyond the queue before new ones are dropped
}

// DefaultHistoryConfig() returns the default history writer options
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		QueueSize:       10_000,
		FlushSize:       500,
		FlushIntervalMS: 200,
		MaxRetryMS:      10_000,
		MaxBacklog:      100_000,
	}
}

// EVM CONFIG BELOW

// EVMConfig is the configuration of the evm account ledger
type EVMConfig struct {
	ChainId uint64 `json:"chainId"` // the eip-155 chain id every evm transaction must be signed for
}

// DefaultEVMConfig() returns the developer chain id
func DefaultEVMConfig() EVMConfig {
	return EVMConfig{ChainId: 2152}
}

// STAKING CONFIG BELOW

// StakingConfig is the configuration of the staking collaborator
type StakingConfig struct {
	CoinbaseInterval int64              `json:"coinbaseInterval"` // mint a coinbase transaction every n blocks (0 disables)
	CoinbaseAmount   uint64             `json:"coinbaseAmount"`   // amount of native asset minted to the proposer
	CoinbaseAsset    string             `json:"coinbaseAsset"`    // the asset code minted
	Validators       []GenesisValidator `json:"validators"`       // the genesis validator set
}

// GenesisValidator is a validator entry in the staking configuration
type GenesisValidator struct {
	Address HexBytes `json:"address"`
	PubKey  HexBytes `json:"pubKey"`
	Power   int64    `json:"power"`
}

// DefaultStakingConfig() returns a config without validators or coinbase
func DefaultStakingConfig() StakingConfig {
	return StakingConfig{CoinbaseAsset: "FRA"}
}

// RPC CONFIG BELOW

type RPCConfig struct {
	RPCPort  string `json:"rpcPort"`  // the port where the query rpc server is hosted
	TimeoutS int    `json:"timeoutS"` // the rpc request timeout in seconds
}

// DefaultRPCConfig() serves the query rpc on localhost:8668
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		RPCPort:  "8668",
		TimeoutS: 3,
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	Enabled           bool   `json:"enabled"`           // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:           true,           // enabled by default
		PrometheusAddress: "0.0.0.0:9090", // the default prometheus address
	}
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filepath string) error {
	// convert the config to indented 'pretty' json bytes
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	// if an error occurred during the conversion
	if err != nil {
		// exit with error
		return err
	}
	// write the config.json file to the data directory
	return os.WriteFile(filepath, jsonBytes, os.ModePerm)
}

// NewConfigFromFile() populates a Config object from a JSON file
func NewConfigFromFile(filepath string) (Config, error) {
	// read the file into bytes using
	fileBytes, err := os.ReadFile(filepath)
	// if an error occurred
	if err != nil {
		// exit with error
		return Config{}, err
	}
	// define the default config to fill in any blanks in the file
	c := DefaultConfig()
	// populate the default config with the file bytes
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		// exit with error
		return Config{}, err
	}
	// exit
	return c, nil
}
