// hashtalkd is the chat agent daemon. `hashtalkd serve` runs the HTTP API;
// `hashtalkd chat` starts a local REPL against an in-process agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:     "hashtalkd",
		Short:   "LLM chat agent with tool calling and history compaction",
		Version: Version,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "path to config YAML")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
