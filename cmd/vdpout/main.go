package main

import "github.com/bryanchriswhite/vdpout/cmd/vdpout/commands"

func main() {
	commands.Execute()
}
