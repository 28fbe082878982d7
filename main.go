package main

import "ecodigital/commands"

func main() {
	commands.Execute()
}
