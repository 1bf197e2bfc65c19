package main

import "github.com/samsaffron/agentwire/cmd"

func main() {
	cmd.Execute()
}
