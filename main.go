package main

import "github.com/Alijeyrad/carelink/cmd"

func main() {
	cmd.Execute()
}
