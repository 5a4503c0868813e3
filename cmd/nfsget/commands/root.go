// Package commands implements the nfsget CLI.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "nfsget",
	Short: "Fetch a single file over NFSv3 without mounting the filesystem",
	Long: `nfsget mounts one NFSv3 export, resolves a path inside it with LOOKUP,
and streams the target file to stdout with READ — a demonstration of the
library's port mapper, MOUNT, and NFSv3 clients end to end.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is the sole entry point main calls.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML), overlaid by NFSCLIENT_* environment variables")
	rootCmd.AddCommand(getCmd)
}
