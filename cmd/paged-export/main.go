// Command paged-export serves Redis lists as NDJSON streams, reading them
// page by page through pkg/stream.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
