package main

import (
	"os"

	"github.com/redmonkez12/blog-api/cmd/blogctl/ui"
)

func main() {
	a, err := newApp(os.Stdout)
	if err != nil {
		ui.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
