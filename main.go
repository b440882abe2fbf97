package main

import "nonocoop/cmd"

func main() {
	cmd.Execute()
}
