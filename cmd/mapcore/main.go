// Command mapcore validates, stores and replays map state snapshots.
package main

import (
	"os"

	"github.com/Iron-Ham/mapcore/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
