// Command shopauth runs the storefront auth service and its operator tools.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
