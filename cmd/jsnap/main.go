package main

import (
	"os"

	"github.com/jsnap/cmd/jsnap/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
