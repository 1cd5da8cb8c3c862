// Ctxroute routes task descriptions to agent roles with a tabular
// Q-learning router and serves tiled attention over HTTP.
//
// Usage:
//
//	# Start the HTTP API
//	ctxroute serve
//
//	# Route a task using the persisted model
//	ctxroute route "fix the login redirect bug"
//
//	# Reward a routing outcome
//	ctxroute feedback "fix the login redirect bug" --route coder --reward 1
package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
