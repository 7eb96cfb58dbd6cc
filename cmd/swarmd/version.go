package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlanders/swarmd/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swarmd version %s\n", version.Get())
	},
}
