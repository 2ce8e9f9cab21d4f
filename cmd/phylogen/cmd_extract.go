package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"phylogen/internal/extract"
)

var extractFlags struct {
	overwrite bool
	dir       string
	config    string
}

var extractCmd = &cobra.Command{
	Use:   "extract [flags] <generated.xml>",
	Short: "Recover the configuration and data files from a generated document",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.BoolVar(&extractFlags.overwrite, "overwrite", false, "Replace existing files")
	f.StringVar(&extractFlags.dir, "dir", ".", "Directory to extract into")
	f.StringVar(&extractFlags.config, "config-name", "", "Filename for the recovered config (default <input>.yaml)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	res, err := extract.ReadFile(args[0])
	if err != nil {
		return err
	}
	name := extractFlags.config
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(args[0]), ".xml") + ".yaml"
	}
	written, err := res.Write(extractFlags.dir, name, extractFlags.overwrite)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
	}
	return nil
}
