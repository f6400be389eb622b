package main

import (
	"fmt"
	"os"

	"github.com/casnet/casnet-backend/cmd/casnetctl/cli"
)

func main() {
	cmd := cli.NewApp().Command()
	if err := cmd.Invoke().WithOS().Run(); err != nil {
		if cli.IsDenied(err) {
			os.Exit(2)
		}
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
