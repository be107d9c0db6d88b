package cli

import (
	"github.com/canopy-network/dualledger/controller"
	"github.com/canopy-network/dualledger/lib"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query the node rpc",
}

var offline = false

func init() {
	queryCmd.PersistentFlags().BoolVar(&offline, "offline", false, "read the status file from the data directory instead of the rpc")
	queryCmd.AddCommand(statusCmd)
	queryCmd.AddCommand(txCmd)
	queryCmd.AddCommand(healthCmd)
}

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "query the status of the last commit",
		Run: func(cmd *cobra.Command, args []string) {
			var (
				status *controller.Status
				err    lib.ErrorI
			)
			if offline {
				status, err = controller.LoadStatus(config.DataDirPath)
			} else {
				status, err = rpcClient().Status()
			}
			if err != nil {
				l.Fatal(err.Error())
			}
			p := message.NewPrinter(language.English)
			p.Printf("height:      %d\n", status.Height)
			p.Printf("blocks:      %d\n", status.BlockCount)
			p.Printf("evm window:  (%d, %d)\n", status.DisableEVMBlockHeight, status.EnableEVMBlockHeight)
			p.Printf("native root: %s\n", status.NativeRoot)
			p.Printf("evm root:    %s\n", status.EVMRoot)
			p.Printf("app hash:    %s\n", status.AppHash)
		},
	}

	txCmd = &cobra.Command{
		Use:   "tx <hash>",
		Short: "query the height a native transaction was delivered at",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(rpcClient().Transaction(args[0]))
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "query the node's height and block phase",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(rpcClient().Health())
		},
	}
)
