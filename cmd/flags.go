package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// flagValue reads a flag registered in init(). A lookup error means the flag
// was never registered or has another type, so it panics.
func flagValue[T any](name string, get func(string) (T, error)) T {
	v, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag --%s: %v", name, err))
	}
	return v
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return flagValue(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return flagValue(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return flagValue(name, cmd.Flags().GetString)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return flagValue(name, cmd.Flags().GetStringSlice)
}

// stringOr returns the flag value, or def when the flag is empty.
func stringOr(cmd *cobra.Command, name, def string) string {
	if v := mustGetString(cmd, name); v != "" {
		return v
	}
	return def
}
