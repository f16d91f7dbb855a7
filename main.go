// ./main.go
package main

import (
	"github.com/xkilldash9x/webpilot-cli/cmd"
)

// main is the entry point for the webpilot CLI. Command-line parsing,
// configuration, and signal handling all live in the cmd package.
func main() {
	cmd.Execute()
}
