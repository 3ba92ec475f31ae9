package main

import "github.com/sentientsergio/synthgen/cmd"

func main() {
	cmd.Execute()
}
