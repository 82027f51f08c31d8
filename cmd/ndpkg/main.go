package main

import (
	"os"

	"github.com/ndpkg/ndpkg/internal/commands"
)

func main() {
	os.Exit(commands.Execute())
}
