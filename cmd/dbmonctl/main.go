package main

import (
	"log"

	"github.com/spf13/cobra"

	moncli "github.com/amirimatin/go-dbmon/pkg/cli"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbmonctl",
		Short:         "go-dbmon monitoring CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Attach all monitor commands from pkg/cli for reuse in services
	moncli.AddAll(root)
	return root
}
