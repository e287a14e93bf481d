// Command oddsync captures round outcome records, stores them and shares
// them with other oddsync processes on the same machine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/oddsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
