package main

import "mingmou/cmd"

func main() {
	cmd.Execute()
}
