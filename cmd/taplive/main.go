// Package main is the entry point for the taplive CLI.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "taplive: %v\n", err)
		}
		os.Exit(1)
	}
}
