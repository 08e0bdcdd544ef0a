package main

import (
	"context"
	"fmt"
	"os"

	"voxpro/internal/cli"
)

func main() {
	if err := cli.NewCtlCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "voxpro-ctl:", err)
		os.Exit(1)
	}
}
