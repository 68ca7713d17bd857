package main

import "github.com/jtmarsh/keywarden/cmd/keywarden/cmd"

func main() {
	cmd.Execute()
}
