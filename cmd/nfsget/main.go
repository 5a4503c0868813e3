// Command nfsget is a minimal demonstration client: it mounts one NFSv3
// export, walks a path with LOOKUP, and streams the target file's contents
// to stdout with READ. It exists to give the library's public surface a
// realistic caller, not as a production tool.
package main

import (
	"os"

	"github.com/opennfsc/client/cmd/nfsget/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
