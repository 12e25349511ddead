package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/robofleet/cmd/robofleet/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
