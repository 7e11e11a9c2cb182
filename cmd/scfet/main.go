package main

import (
	"fmt"
	"os"

	"github.com/scfet/notification-client/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(nil)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
