// Command intake runs the medical intake dialogue engine from the terminal,
// over HTTP or as an MCP server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
