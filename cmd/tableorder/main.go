// Command tableorder operates a table ordering store from the command line.
package main

import (
	"context"
	"os"

	"github.com/roach88/tableorder/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
