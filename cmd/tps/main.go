package main

import (
	"fmt"
	"log"
	"time"

	"github.com/canopy-network/dualledger/cmd/cli"
	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/spf13/cobra"
)

var (
	blocks, txsPerBlock = 100, 1000
	out                 = "blocks.json"
)

// tps writes a replay file of transfer chains for measuring delivery throughput with `dualledger replay`
var rootCmd = &cobra.Command{
	Use:   "tps",
	Short: "generate a replay file of transfer chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if blocks < 1 || txsPerBlock < 1 {
			return fmt.Errorf("blocks and txs must be positive")
		}
		fmt.Println("Generating transactions")
		if err := lib.SaveJSONToFile(Generate(blocks, txsPerBlock), ".", out); err != nil {
			return err
		}
		fmt.Printf("Wrote %d blocks of %d transactions to %s\n", blocks, txsPerBlock, out)
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVar(&blocks, "blocks", blocks, "number of blocks")
	rootCmd.Flags().IntVar(&txsPerBlock, "txs", txsPerBlock, "transfers per block")
	rootCmd.Flags().StringVar(&out, "out", out, "output file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Generate() builds a first block that defines and issues one txo per chain, followed by blocks
// where every chain spends its previous output
func Generate(blocks, txsPerBlock int) []cli.ReplayBlock {
	owner, asset := lib.HexBytes("tps-owner"), "TPS"
	outputs := make([]ledger.Output, txsPerBlock)
	for i := range outputs {
		outputs[i] = ledger.Output{Owner: owner, Asset: asset, Amount: 1}
	}
	genesis := mustTx(0,
		ledger.Operation{Type: ledger.OpDefineAsset, Asset: asset, Issuer: owner},
		ledger.Operation{Type: ledger.OpIssueAsset, Asset: asset, Outputs: outputs},
	)
	result := []cli.ReplayBlock{newBlock(1, genesis)}
	// chain i's current output; sids are handed out sequentially per created output
	heads, next := make([]uint64, txsPerBlock), uint64(txsPerBlock)
	for i := range heads {
		heads[i] = uint64(i)
	}
	for h := 2; h <= blocks; h++ {
		txs := make([]lib.HexBytes, 0, txsPerBlock)
		for i := range heads {
			txs = append(txs, mustTx(uint64(h), ledger.Operation{
				Type:    ledger.OpTransferAsset,
				Inputs:  []uint64{heads[i]},
				Outputs: []ledger.Output{{Owner: owner, Asset: asset, Amount: 1}},
			}))
			heads[i], next = next, next+1
		}
		result = append(result, newBlock(int64(h), txs...))
	}
	return result
}

func newBlock(height int64, txs ...lib.HexBytes) cli.ReplayBlock {
	b := cli.ReplayBlock{Txs: txs}
	b.Header = lib.Header{Height: height, Time: time.Unix(height, 0).UTC()}
	return b
}

func mustTx(nonce uint64, ops ...ledger.Operation) lib.HexBytes {
	bz, err := lib.MarshalJSON(&ledger.Transaction{Body: ledger.Body{NoReplayToken: nonce, Operations: ops}})
	if err != nil {
		panic(err)
	}
	return bz
}
