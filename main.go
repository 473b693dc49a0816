package main

import "github.com/ethpandaops/execution-calltree/cmd"

func main() {
	cmd.Execute()
}
