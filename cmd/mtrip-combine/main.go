package main

import (
	"fmt"
	"os"

	"github.com/ChristianF88/mtrip/cli"
)

func main() {
	if err := cli.CombineApp.Run(os.Args); err != nil {
		fmt.Println("Error running CLI app:", err)
		os.Exit(1)
	}
}
