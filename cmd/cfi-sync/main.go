package main

import (
	"fmt"
	"os"

	"github.com/investblog/cloudflare-images-sync/internal/cli"
)

var Version = "dev"

func main() {
	if err := cli.NewRootCommand(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
