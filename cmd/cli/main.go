package main

import "github.com/heap-analysis/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
