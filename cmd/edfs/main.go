// Command edfs formats, inspects and edits EdFS images.
package main

import (
	"fmt"
	"os"

	"github.com/edfs/go-edfs/filesystem"
)

func main() {
	if err := newApp(os.Stdout, os.Stdin).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "edfs: %v\n", err)
		os.Exit(int(filesystem.Errno(err)))
	}
}
