package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/kozaktomas/face-indexer/cmd.Version=..." at build time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
}

func currentBuild() buildInfo {
	return buildInfo{Version: Version, Commit: CommitSHA, Built: BuildDate, Go: runtime.Version()}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentBuild()
		if mustGetBool(cmd, "json") {
			return outputJSON(info)
		}
		fmt.Printf("face-indexer %s (%s, built %s, %s)\n", info.Version, info.Commit, info.Built, info.Go)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
