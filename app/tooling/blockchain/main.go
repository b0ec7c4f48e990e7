package main

import (
	"os"

	"github.com/openchain/blockchain/app/tooling/blockchain/cmd"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {
	os.Exit(cmd.Execute(build))
}
