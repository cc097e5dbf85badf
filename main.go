package main

import "github.com/theirongolddev/printmeter/cmd"

func main() {
	cmd.Execute()
}
