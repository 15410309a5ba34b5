// Command jarvis is a voice assistant for the lab.
//
// Usage:
//
//	jarvis [flags] <command>
//
// Commands:
//
//	run        - Listen for commands (microphone or console) and serve the control API
//	ask        - Ask a single question and print the answer
//	history    - Show stored conversation and lab readings
//	lab serve  - Run the simulated lab sensor server
//	watch      - Stream the live event log from a running assistant
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-jarvis/cmd/jarvis/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
