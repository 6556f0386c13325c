package main

import "labguard/cmd"

func main() {
	cmd.Execute()
}
