// rfgraph - knowledge graph, redundancy and diversity engine for Robot
// Framework projects.
//
// rfgraph indexes .robot and .resource files into a structural graph,
// resolves which keywords each file can see, and finds duplicated keywords,
// diverse smoke suites and coverage gaps.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/rfgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
