// Package main provides the huntbot binary: the hunting bot itself plus the
// tools around it (status watcher, configuration checks, journal queries).
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
