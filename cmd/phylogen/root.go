// phylogen compiles declarative comparative-linguistics analysis
// configurations into ready-to-run inference documents.
//
// Usage:
//
//	phylogen generate [-o out.xml] [--overwrite] [--prior] <config.yaml>...
//	phylogen extract  [--overwrite] <generated.xml>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"phylogen/internal/beastgen"
	"phylogen/internal/config"
	"phylogen/internal/datafile"
	"phylogen/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "phylogen",
	Short: "Compile linguistic analysis configs into inference documents",
	Long: "Phylogen turns declarative descriptions of Bayesian phylolinguistic\n" +
		"analyses into complete XML documents for the inference engine.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if rootFlags.verbose {
			level = "debug"
		}
		logging.Init(level, "text", cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.Version = version
}

// Exit codes of the CLI contract.
const (
	exitOK           = 0
	exitMissingInput = 1
	exitConfig       = 2
	exitBuild        = 3
	exitOutputExists = 4
)

// outputExistsError refuses to clobber an output file.
type outputExistsError struct{ path string }

func (e *outputExistsError) Error() string {
	return fmt.Sprintf("%s already exists (use --overwrite to replace it)", e.path)
}

func exitCode(err error) int {
	var (
		cfgErr    *config.ConfigError
		dataErr   *datafile.DataError
		buildErr  *beastgen.BuildError
		existsErr *outputExistsError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &existsErr):
		return exitOutputExists
	case errors.As(err, &buildErr):
		return exitBuild
	case errors.As(err, &cfgErr), errors.As(err, &dataErr):
		return exitConfig
	case errors.Is(err, os.ErrNotExist):
		return exitMissingInput
	default:
		return exitConfig
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
