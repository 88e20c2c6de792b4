// Package cmd defines the newsdl command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd creates the root command. Each invocation gets its own viper
// instance so flags bound by subcommands never leak between runs.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "newsdl",
		Short: "Download news pages in parallel and extract their text",
		Long: `newsdl fetches a batch of news article, live-story, and gallery URLs with
a pool of browser workers, honours each host's robots rules after redirects,
and writes one structured result per URL.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.AddCommand(newDownloadCmd(v, &cfgFile))
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
