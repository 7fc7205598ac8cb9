// Command allegro queries Allegro WebAPI and watches the site journal.
package main

import (
	"os"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(version, buildDate).Execute(); err != nil {
		os.Exit(1)
	}
}
