// Command semedit edits source files by syntax node instead of by line.
package main

import "github.com/odvcencio/semedit/cli"

func main() {
	cli.Execute()
}
