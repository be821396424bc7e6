// linecheck answers "does this exact line exist in the file?" over TCP,
// one query per connection.
package main

import (
	"os"

	"github.com/corey/linecheck/cmd/linecheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
