package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"spimfuse/internal/cli"
)

func main() {
	_ = godotenv.Load()

	root := cli.NewRoot(nil, nil, nil)
	err := cli.Execute(root)
	if cerr := root.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
