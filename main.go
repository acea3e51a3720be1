package main

import (
	"github.com/sw33tLie/candyvend/cmd"
)

func main() {
	cmd.Execute()
}
