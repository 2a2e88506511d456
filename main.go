package main

import "github.com/clausify/clausify/cmd"

func main() {
	cmd.Execute()
}
