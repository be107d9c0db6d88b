package main

import "github.com/canopy-network/dualledger/cmd/cli"

func main() {
	cli.Execute()
}
