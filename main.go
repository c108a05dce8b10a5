package main

import "github.com/propeire/propeire/cmd"

func main() {
	cmd.Execute()
}
