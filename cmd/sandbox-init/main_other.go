//go:build !linux

// Command sandbox-init is the linux sandbox helper. It has no function on other platforms.
package main

import (
	"fmt"
	"os"
)

func main() {
	_, _ = fmt.Fprintln(os.Stderr, "sandbox-init is only supported on linux")
	os.Exit(1)
}
