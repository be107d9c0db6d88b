package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/canopy-network/dualledger/cmd/rpc"
	"github.com/canopy-network/dualledger/controller"
	"github.com/canopy-network/dualledger/history"
	"github.com/canopy-network/dualledger/ledger/evm"
	"github.com/canopy-network/dualledger/ledger/staking"
	"github.com/canopy-network/dualledger/ledger/utxo"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var rootCmd = &cobra.Command{
	Use:     "dualledger",
	Short:   "the dual ledger consensus application",
	Version: controller.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = InitializeDataDirectory(dataDir, lib.NewDefaultLogger())
		l = lib.NewLogger(lib.LoggerConfig{Level: config.GetLogLevel()}, config.DataDirPath)
	},
}

var (
	config, l = lib.Config{}, lib.LoggerI(nil)
	dataDir   = ""
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the application and its query rpc",
	Run: func(cmd *cobra.Command, args []string) {
		Start()
	},
}

// Start() is the entrypoint of the application
func Start() {
	// initialize the metrics server
	metrics := lib.NewMetricsServer(config.MetricsConfig, l)
	// open the database and the ledgers
	n, err := NewNode(config, metrics, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	defer n.Close()
	// report the last committed state
	info := n.App.Info(lib.RequestInfo{Version: controller.Version})
	l.Infof("Dual ledger %s | height %d | app hash %s | evm window (%d, %d)", controller.Version,
		info.LastBlockHeight, lib.BytesToTruncatedString(info.LastBlockAppHash), config.DisableEVMBlockHeight, config.EnableEVMBlockHeight)
	// start the metrics server
	metrics.Start()
	defer metrics.Stop()
	// serve the query rpc until a kill signal is received
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rpc.NewServer(n.App, n.History, config, l).Start(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		l.Info("Exit command received")
		return nil
	})
	if err := g.Wait(); err != nil {
		l.Error(err.Error())
	}
}

// Node is the application wired over one database
type Node struct {
	App     *controller.Controller
	History *history.TxHistory
	DB      *store.Store
}

// NewNode() opens the database, builds the three ledgers and the replay history, and wires them into a controller
func NewNode(c lib.Config, metrics *lib.Metrics, log lib.LoggerI) (*Node, lib.ErrorI) {
	db, err := store.New(c, lib.WithPrefix(log, "store"))
	if err != nil {
		return nil, err
	}
	n := &Node{DB: db}
	native, err := utxo.New(db, lib.WithPrefix(log, "utxo"))
	if err != nil {
		db.Close()
		return nil, err
	}
	evmApp, err := evm.New(c.EVMConfig, db, lib.WithPrefix(log, "evm"))
	if err != nil {
		db.Close()
		return nil, err
	}
	stakingModule, err := staking.New(c.StakingConfig, db, lib.WithPrefix(log, "staking"))
	if err != nil {
		db.Close()
		return nil, err
	}
	n.History = history.New(c.HistoryConfig, db, metrics, lib.WithPrefix(log, "history"))
	n.App, err = controller.New(c, native, evmApp, stakingModule, n.History, metrics, log)
	if err != nil {
		n.History.Close()
		db.Close()
		return nil, err
	}
	return n, nil
}

// Close() stops the controller, drains the history writer and closes the database
func (n *Node) Close() {
	n.App.Stop()
	n.History.Close()
	if err := n.DB.Close(); err != nil {
		l.Error(err.Error())
	}
}

// InitializeDataDirectory() populates the data directory with configuration files if missing
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) (c lib.Config) {
	// make the data dir if missing
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatal(err.Error())
	}
	// make the config.json file if missing
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		defaults := lib.DefaultConfig()
		defaults.DataDirPath = dataDirPath
		if err = defaults.WriteToFile(configFilePath); err != nil {
			log.Fatal(err.Error())
		}
	}
	// load the config from file
	c, err := lib.NewConfigFromFile(configFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// the flag wins over the file
	c.DataDirPath = dataDirPath
	// reject an invalid evm window before anything is opened
	if _, e := c.Window(); e != nil {
		log.Fatal(e.Error())
	}
	return
}

// rpcClient() returns a client for the local node's query rpc
func rpcClient() *rpc.Client {
	return rpc.NewClient("http://localhost", config.RPCPort, time.Duration(config.TimeoutS)*time.Second)
}

func writeToConsole(a any, err error) {
	if err != nil {
		l.Fatal(err.Error())
	}
	s, e := lib.MarshalJSONIndentString(a)
	if e != nil {
		l.Fatal(e.Error())
	}
	fmt.Println(s)
}
