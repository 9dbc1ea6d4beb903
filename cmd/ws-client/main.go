package main

import "gatehub/cmd/ws-client/command"

func main() {
	command.Execute()
}
