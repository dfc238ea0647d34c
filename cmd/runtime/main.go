// Command runtime starts a single quadracode runtime process: one
// identity, one profile, one poll loop against the shared ordered log.
// Configuration is resolved entirely from the environment (see
// internal/config), following the command-line-and-fallback shape of the
// original orchestrator entrypoint but without any YAML pipeline config.
package main

import (
	"context"
	"log"
	"os"

	"github.com/quadracode/runtime/internal/graph"
	"github.com/quadracode/runtime/public/agent"
)

// main wires a graph.StubModel as the default local-development driver.
// Anything embedding this module for production use should call
// agent.Run directly with a real Model rather than running this binary.
func main() {
	model := &graph.StubModel{DefaultContent: defaultReply()}

	ctx := context.Background()
	if err := agent.Run(ctx, agent.Options{Model: model}); err != nil {
		log.Fatalf("runtime: %v", err)
	}
}

func defaultReply() string {
	if v := os.Getenv("QUADRACODE_STUB_REPLY"); v != "" {
		return v
	}
	return "acknowledged"
}
