// Command docingest runs the statement and receipt extraction pipelines on
// local files, without a database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
