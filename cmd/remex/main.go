package main

import "remex/internal/cli"

func main() {
	cli.Execute()
}
