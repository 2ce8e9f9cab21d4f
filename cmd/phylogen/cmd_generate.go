package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"phylogen/internal/beastgen"
	"phylogen/internal/config"
	"phylogen/internal/rawcfg"
	"phylogen/internal/report"
	"phylogen/internal/xmltree"
)

var generateFlags struct {
	output       string
	overwrite    bool
	stdin        bool
	prior        bool
	report       bool
	languageList bool
}

var generateCmd = &cobra.Command{
	Use:   "generate [flags] <config>...",
	Short: "Compile configuration files into an inference document",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateFlags.output, "output", "o", "", "Output path (default <basename>.xml)")
	f.BoolVar(&generateFlags.overwrite, "overwrite", false, "Replace existing output files")
	f.BoolVar(&generateFlags.stdin, "stdin", false, "Read model data from standard input")
	f.BoolVar(&generateFlags.prior, "prior", false, "Sample from the prior only")
	f.BoolVar(&generateFlags.report, "report", false, "Write a markdown report and GeoJSON export")
	f.BoolVar(&generateFlags.languageList, "language-list", false, "Write the final language list")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	raw, err := rawcfg.Load(args...)
	if err != nil {
		return err
	}

	opts := []config.Option{}
	if generateFlags.stdin {
		opts = append(opts, config.WithStdin(cmd.InOrStdin()))
	}
	cfg, err := config.New(raw, opts...)
	if err != nil {
		return err
	}
	if generateFlags.prior {
		cfg.MCMC.SampleFromPrior = true
		cfg.Admin.Basename += "_prior"
	}

	outPath := generateFlags.output
	if outPath == "" {
		outPath = cfg.Admin.Basename + ".xml"
	}
	// Refused before any processing so a long resolution pass cannot end
	// in a clobbering surprise.
	if !generateFlags.overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return &outputExistsError{path: outPath}
		}
	}

	if err := cfg.Process(cmd.Context()); err != nil {
		return err
	}

	builder, err := beastgen.New(cfg, beastgen.Options{Version: version})
	if err != nil {
		return err
	}
	doc, err := builder.Build()
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := xmltree.Write(out, doc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)

	return writeAuxOutputs(cmd, cfg)
}

// writeAuxOutputs writes the optional report, GeoJSON and language-list
// files, concurrently; the document itself is already safely on disk.
func writeAuxOutputs(cmd *cobra.Command, cfg *config.Config) error {
	g, _ := errgroup.WithContext(cmd.Context())
	base := cfg.Admin.Basename

	if generateFlags.report {
		g.Go(func() error {
			md := report.Markdown(cfg, version, time.Now())
			return writeAux(cmd, base+".md", []byte(md))
		})
		g.Go(func() error {
			gj, err := report.GeoJSON(cfg)
			if err != nil {
				return err
			}
			return writeAux(cmd, base+".geojson", gj)
		})
	}
	if generateFlags.languageList {
		g.Go(func() error {
			return writeAux(cmd, base+"_languages.txt", []byte(report.LanguageList(cfg)))
		})
	}
	return g.Wait()
}

func writeAux(cmd *cobra.Command, path string, data []byte) error {
	if !generateFlags.overwrite {
		if _, err := os.Stat(path); err == nil {
			return &outputExistsError{path: path}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
