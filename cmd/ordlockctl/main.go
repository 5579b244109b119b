package main

import (
	"os"

	"github.com/go-xlan/ordlock/cmd/ordlockctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
