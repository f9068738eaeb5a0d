package main

import "github.com/openmd/haloexchange/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
