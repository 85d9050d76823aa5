// Package app provides the entry point for the oauthcore command-line tool.
package app

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/collectionlab/oauthcore/pkg/logger"
)

// NewRootCmd creates the root command for the oauthcore CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "oauthcore",
		DisableAutoGenTag: true,
		Short:             "oauthcore drives OAuth 2.0 token acquisition and inspects cached credentials",
		Long: `oauthcore is a standalone driver for the token acquisition core used by the
collection tooling. It performs authorization_code, client_credentials, and
password grants against a configured token endpoint, and inspects or clears
the on-disk credential cache.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if viper.GetBool("debug") {
				// -1 is zapcore.DebugLevel, in the numeric form logger.Initialize reads.
				_ = os.Setenv("OAUTHCORE_LOG_LEVEL", "-1")
			}
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("store", "", "Path to the credential store file (default: XDG data dir)")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}
	if err := viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store")); err != nil {
		logger.Errorf("error binding store flag: %v", err)
	}

	rootCmd.AddCommand(newTokenCommand())

	rootCmd.SilenceUsage = true
	return rootCmd
}
