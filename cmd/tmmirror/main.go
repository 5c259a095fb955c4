// Command tmmirror mirrors the HOT Tasking Manager API into
// cloud-native geospatial artifacts on S3-compatible storage.
package main

import (
	"fmt"
	"os"

	"tmmirror/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
