// Command fintrack runs the ledger API, the background worker and the
// maintenance commands.
package main

import "fintrack/internal/cli"

func main() {
	cli.Execute()
}
