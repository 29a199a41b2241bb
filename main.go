package main

import "guardget/cmd"

func main() {
	cmd.Execute()
}
