package main

import "github.com/armis/armis/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
