// Command cdpctl is a thin CLI over the cdpgo client library (A6):
// connect to or launch an engine, print its version, and open pages from
// the command line. Grounded on _examples/grafana-k6/cmd's cobra root +
// subcommand layout, pared down to this library's much smaller surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
