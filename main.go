package main

import (
	"context"
	"fmt"
	"os"

	"github.com/7blacky7/ngramlm/cmd"
)

func main() {
	if err := cmd.NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
