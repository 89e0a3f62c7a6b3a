package main

import (
	"os"

	fabrixcmd "github.com/esystemsdev/fabrixctl/pkg/fabrixctl/cmd"
)

func main() {
	root := fabrixcmd.NewRootCommand(fabrixcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
