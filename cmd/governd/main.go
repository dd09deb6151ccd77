package main

import "github.com/tutu-network/govcore/internal/cli"

func main() {
	cli.Execute()
}
