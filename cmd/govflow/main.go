package main

import (
	"os"

	"github.com/RealZimboGuy/govflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
