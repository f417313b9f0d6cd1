package main

import "facc/cmd"

func main() {
	cmd.Execute()
}
