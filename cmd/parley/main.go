package main

import (
	"github.com/parley-p2p/parley/cmd/parley/cmd"
)

func main() {
	cmd.Execute()
}
