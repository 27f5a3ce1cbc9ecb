package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for PolderCast
var RootCmd = &cobra.Command{
	Use:              "poldercast",
	Short:            "topic-based gossip overlay",
	TraverseChildren: true,
}
