// cmd/autojp/main.go
package main

import (
	"fmt"
	"os"

	"github.com/autojp/autojp/cmd/autojp/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
