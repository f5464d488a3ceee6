// Command convergecast runs a single convergecast node, or an
// in-process simulation of a whole network, over the protocol
// described in this repository's design documents.
package main

import (
	"fmt"
	"os"

	"github.com/kprusa/convergecast/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
