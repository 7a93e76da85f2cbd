package main

import (
	"github.com/arc-self/amy-core/cmd/core/cmd"
)

func main() {
	cmd.Execute()
}
