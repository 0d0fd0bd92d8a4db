// Package main provides the leapsheets CLI, which exports SQL query results
// to spreadsheets.
package main

import (
	"os"

	"github.com/leapstack-labs/leapsheets/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
