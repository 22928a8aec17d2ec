// Package cmd implements the heap-analysis command line interface.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/heap-analysis/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heap-analysis",
	Short: "A heap dump indexing tool",
	Long: `heap-analysis builds compact in-memory indexes over Java HPROF heap
dumps. The index supports random object lookup by identifier without
keeping the dump in memory, which is what makes multi-gigabyte dumps
tractable on a laptop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	binName := BinName()
	rootCmd.Example = `  # Index a local heap dump
  ` + binName + ` index ./heapdump.hprof

  # Index several dumps concurrently with debug logging
  ` + binName + ` index -v dump1.hprof dump2.hprof

  # Fetch dumps from configured object storage first
  ` + binName + ` index --from-storage dumps/app-2026-08-06.hprof

  # Record build summaries in the dump catalog
  ` + binName + ` index --catalog ./heapdump.hprof`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
