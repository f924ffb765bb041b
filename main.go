// The main package for the ghast executable.
package main

import (
	"github.com/rcarls/ghast/cmd"
)

func main() {
	cmd.Execute()
}
