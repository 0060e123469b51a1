// Package app provides the commands of the interstate broker CLI.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/mapping"
	"github.com/interstate-love-song/broker/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "interstate",
	DisableAutoGenTag: true,
	Short:             "Interstate Love Song is a connection broker for Teradici PCoIP clients",
	Long: `Interstate Love Song is a connection broker for Teradici PCoIP clients.

A PCoIP client performs an XML-over-HTTPS handshake with the broker, which
authenticates the user, presents the workstations they are entitled to, and
allocates a session on the one they pick.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		// Re-initialize after flag parsing so --debug takes effect.
		logger.Initialize()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash PASSWORD",
	Short: "Hash a password for the simple mapper configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		fmt.Println(mapping.HashPassword(args[0]))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(*cobra.Command, []string) {
		info := versions.GetVersionInfo()
		fmt.Printf("Version:    %s\n", info.Version)
		fmt.Printf("Commit:     %s\n", info.Commit)
		fmt.Printf("Build date: %s\n", info.BuildDate)
		fmt.Printf("Go version: %s\n", info.GoVersion)
		fmt.Printf("Platform:   %s\n", info.Platform)
	},
}

// NewRootCmd creates the root command for the interstate broker CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}
