package main

import "github.com/veriface/attendance/cmd"

func main() {
	cmd.Execute()
}
