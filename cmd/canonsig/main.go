// Command canonsig signs and verifies JSON records, manages the signing
// key and runs the HTTP and gRPC services.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
