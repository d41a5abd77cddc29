package main

import (
	"github.com/terrorizer1980/stream-loader/internal/cli"
)

func main() {
	cli.Execute()
}
