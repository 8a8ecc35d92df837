// Command shardctl inspects a sharding configuration: which physical table a
// key routes to and which cache keys hold its data.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
