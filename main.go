// The main package for the seo-auditor executable.
package main

import (
	"github.com/JakeFAU/seo-auditor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
