package cli

import (
	"fmt"

	"github.com/canopy-network/dualledger/lib"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReplayBlock is one block of a replay file: the BeginBlock request plus the block's raw transactions
type ReplayBlock struct {
	lib.RequestBeginBlock
	Txs []lib.HexBytes `json:"txs"`
}

var replayCmd = &cobra.Command{
	Use:   "replay <blocks.json>",
	Short: "drive the application through the blocks in a json file and print each app hash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var blocks []ReplayBlock
		if err := lib.NewJSONFromFile(&blocks, "", args[0]); err != nil {
			l.Fatal(err.Error())
		}
		n, err := NewNode(config, nil, l)
		if err != nil {
			l.Fatal(err.Error())
		}
		defer n.Close()
		summary, e := Replay(n.App, blocks)
		if e != nil {
			l.Fatal(e.Error())
		}
		p := message.NewPrinter(language.English)
		p.Printf("replayed %d blocks: %d txs applied, %d rejected\n", len(blocks), summary.Applied, summary.Rejected)
	},
}

// ReplaySummary counts delivery outcomes
type ReplaySummary struct {
	Applied  int
	Rejected int
}

// Replay() runs every block through the full lifecycle in order; blocks at or below the committed height are skipped
func Replay(app lib.ApplicationI, blocks []ReplayBlock) (summary ReplaySummary, err lib.ErrorI) {
	info := app.Info(lib.RequestInfo{})
	for _, b := range blocks {
		height := b.Header.Height
		if height <= info.LastBlockHeight {
			continue
		}
		if height != info.LastBlockHeight+1 {
			return summary, lib.ErrInvalidArgument(fmt.Sprintf("block %d doesn't follow height %d", height, info.LastBlockHeight))
		}
		app.BeginBlock(b.RequestBeginBlock)
		for _, tx := range b.Txs {
			if resp := app.DeliverTx(lib.RequestDeliverTx{Tx: tx}); resp.IsOK() {
				summary.Applied++
			} else {
				summary.Rejected++
			}
		}
		app.EndBlock(lib.RequestEndBlock{Height: height})
		commit := app.Commit(lib.RequestCommit{})
		fmt.Printf("%d %s\n", height, commit.Data)
		info.LastBlockHeight = height
	}
	return
}
