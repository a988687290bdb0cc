// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Pdfscrub finds and removes forensic artifacts in PDF files.
//
// Usage:
//
//	pdfscrub scan [flags] file.pdf...
//	pdfscrub clean [flags] file.pdf...
//
// The scan command lists the artifacts found in each file.  The clean
// command writes a sanitized copy of each file next to the original,
// with the suffix given by --suffix.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"seehuhn.de/go/pdfscrub"
	"seehuhn.de/go/pdfscrub/config"
	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfscrub: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	format     string
	suffix     string
	xrefStream bool
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr, nil)
		return errors.New("missing command")
	}
	cmd := args[0]
	if cmd != "scan" && cmd != "clean" {
		if cmd == "-h" || cmd == "--help" || cmd == "help" {
			usage(stdout, nil)
			return pflag.ErrHelp
		}
		usage(stderr, nil)
		return fmt.Errorf("unknown command %q", cmd)
	}

	opt := &options{}
	flagSet := pflag.NewFlagSet("pdfscrub "+cmd, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opt.configPath, "config", "c", "",
		"configuration file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&opt.logLevel, "log-level", "", "override the configured log level")
	if cmd == "scan" {
		flagSet.StringVarP(&opt.format, "format", "f", "text", "output format: text or yaml")
	} else {
		flagSet.StringVarP(&opt.suffix, "suffix", "s", ".clean", "suffix for the sanitized files")
		flagSet.BoolVar(&opt.xrefStream, "xref-stream", false, "write cross-reference streams")
	}
	flagSet.Usage = func() { usage(stderr, flagSet) }
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	files := flagSet.Args()
	if len(files) == 0 {
		usage(stderr, flagSet)
		return errors.New("no input files")
	}

	cfg, err := config.Load(opt.configPath)
	if err != nil {
		return err
	}
	if opt.xrefStream {
		cfg.Cleaner.XRefStream = true
	}
	if opt.logLevel != "" {
		cfg.Log.Level = opt.logLevel
	}
	logger, err := newLogger(stderr, cfg.Log)
	if err != nil {
		return err
	}
	logging.SetLogger(logger)

	svc, err := pdfscrub.New(cfg, logger)
	if err != nil {
		return err
	}

	// Files are processed concurrently, the service bounds the number of
	// scans and cleaning runs in progress.  Output is printed in the
	// order of the arguments.
	outputs := make([]string, len(files))
	errs := make([]error, len(files))
	g := &errgroup.Group{}
	for i, name := range files {
		g.Go(func() error {
			b := &strings.Builder{}
			if cmd == "scan" {
				errs[i] = scanFile(ctx, svc, name, opt.format, b)
			} else {
				errs[i] = cleanFile(ctx, svc, name, opt.suffix, b)
			}
			outputs[i] = b.String()
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, name := range files {
		io.WriteString(stdout, outputs[i])
		if errs[i] != nil {
			fmt.Fprintf(stderr, "%s: %v\n", name, errs[i])
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// newLogger follows the configured format.  If no format is configured,
// text is used on terminals and JSON otherwise.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	format := cfg.Format
	if format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	return logging.New(w, cfg.Level, format)
}

func scanFile(ctx context.Context, svc *pdfscrub.Service, name, format string, w io.Writer) error {
	doc, err := svc.Open(ctx, name, nil)
	if err != nil {
		return err
	}
	res, err := svc.Scan(ctx, doc)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		return writeYAML(w, name, res)
	case "text":
		writeText(w, name, res)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, name string, res *forensic.Result) {
	fmt.Fprintf(w, "%s: risk %s, %d artifacts\n", name, res.Risk, len(res.Artifacts))
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "  %-8s %-12s %s: %s\n", a.Risk, a.Type, a.Location, a.Description)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	if len(res.Recommendations) > 0 {
		fmt.Fprintln(w, "  recommendations:")
		for _, r := range res.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}

type yamlArtifact struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Kind        string `yaml:"kind"`
	Risk        string `yaml:"risk"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	Remediation string `yaml:"remediation,omitempty"`
}

type yamlResult struct {
	File            string            `yaml:"file"`
	DocumentID      string            `yaml:"document_id"`
	Risk            string            `yaml:"risk"`
	Artifacts       []yamlArtifact    `yaml:"artifacts"`
	Recommendations []string          `yaml:"recommendations,omitempty"`
	Warnings        []string          `yaml:"warnings,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
}

func writeYAML(w io.Writer, name string, res *forensic.Result) error {
	out := yamlResult{
		File:            name,
		DocumentID:      res.DocumentID,
		Risk:            res.Risk.String(),
		Recommendations: res.Recommendations,
		Warnings:        res.Warnings,
		Metadata:        res.Metadata,
	}
	for _, a := range res.Artifacts {
		out.Artifacts = append(out.Artifacts, yamlArtifact{
			ID:          a.ID,
			Type:        a.Type.String(),
			Kind:        a.Kind,
			Risk:        a.Risk.String(),
			Location:    a.Location.String(),
			Description: a.Description,
			Remediation: a.Remediation,
		})
	}

	io.WriteString(w, "---\n")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func cleanFile(ctx context.Context, svc *pdfscrub.Service, name, suffix string, w io.Writer) error {
	doc, err := svc.Open(ctx, name, nil)
	if err != nil {
		return err
	}
	rep, err := svc.Sanitize(ctx, doc)
	if err != nil {
		return err
	}

	ext := filepath.Ext(name)
	outName := strings.TrimSuffix(name, ext) + suffix + ext
	err = os.WriteFile(outName, rep.Output, 0o644)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s -> %s: %d of %d artifacts removed\n",
		name, outName, rep.Cleaned, len(rep.Scan.Artifacts))
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "  not removed: %s %s (%s)\n", f.Artifact.Kind, f.Artifact.Location, f.Message)
	}
	return nil
}

func usage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: pdfscrub scan|clean [flags] file.pdf...")
	if flagSet != nil {
		fmt.Fprintln(w)
		flagSet.SetOutput(w)
		flagSet.PrintDefaults()
	}
}
