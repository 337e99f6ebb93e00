package main

import "github.com/shizukutanaka/smartplug/cmd/smartplug/commands"

func main() {
	commands.Execute()
}
