package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-docbind/pkg/docbind"
	"github.com/benjaminschreck/go-docbind/pkg/docbind/render"
	docxml "github.com/benjaminschreck/go-docbind/pkg/docbind/xml"
)

// app holds the state shared by all subcommands.
type app struct {
	logLevel string
	verbose  bool

	config *docbind.Config
	logger *docbind.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "docbind",
		Short: "Bind JSON or YAML data into DOCX templates",
		Long: `docbind fills DOCX templates with data.

Templates use {{path}} placeholders, [[condition]]...[[end:condition]] blocks
and <<add_more path>>...<<end:add_more>> repeaters. Configuration is read from
DOCBIND_* environment variables; flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error or off (default from DOCBIND_LOG_LEVEL)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRenderCmd(a),
		newResolveCmd(a),
		newRepairCmd(a),
		newValidateCmd(a),
		newRefsCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	config, err := docbind.LoadConfig()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		config.LogLevel = a.logLevel
	}
	if a.verbose {
		config.LogLevel = "debug"
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.config = config
	a.logger = docbind.NewLogger(cmd.ErrOrStderr(), docbind.ParseLogLevel(config.LogLevel))
	docbind.SetLogger(a.logger)
	return nil
}

func (a *app) newEngine(opts ...docbind.Option) *docbind.Engine {
	base := []docbind.Option{docbind.WithConfig(a.config), docbind.WithLogger(a.logger)}
	return docbind.NewWithOptions(append(base, opts...)...)
}

type renderOptions struct {
	output      string
	companyName string
	strict      bool
	noHeaders   bool
	watch       bool
	debounce    time.Duration
}

func newRenderCmd(a *app) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render TEMPLATE DATA",
		Short: "Render a DOCX template with a JSON or YAML data file",
		Example: `  docbind render offer.docx customer.json -o offer-jane.docx
  docbind render offer.docx customer.yaml --watch`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output == "" {
				opts.output = defaultOutputPath(args[0])
			}

			var engineOpts []docbind.Option
			if opts.companyName != "" {
				engineOpts = append(engineOpts, docbind.WithCompanyName(opts.companyName))
			}
			if opts.strict {
				engineOpts = append(engineOpts, docbind.WithStrictMode(true))
			}
			engine := a.newEngine(engineOpts...)
			defer engine.Close()
			if opts.noHeaders {
				config := *engine.Config()
				config.RenderHeadersFooters = false
				engine.SetConfig(&config)
			}

			job := &renderJob{
				engine:       engine,
				logger:       a.logger,
				templatePath: args[0],
				dataPath:     args[1],
				outputPath:   opts.output,
			}

			if err := job.run(cmd.Context()); err != nil {
				if !opts.watch {
					return err
				}
				a.logger.Error("Render failed: %v", err)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.output)
			}

			if !opts.watch {
				return nil
			}
			return watchAndRender(cmd.Context(), job, opts.debounce)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (default TEMPLATE-rendered.docx)")
	cmd.Flags().StringVar(&opts.companyName, "company-name", "", "value for {{company_name}}")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on malformed template syntax")
	cmd.Flags().BoolVar(&opts.noHeaders, "no-headers", false, "leave headers and footers untouched")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render whenever the template or data file changes")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 250*time.Millisecond, "quiet period before re-rendering in watch mode")
	return cmd
}

func defaultOutputPath(templatePath string) string {
	ext := filepath.Ext(templatePath)
	return strings.TrimSuffix(templatePath, ext) + "-rendered" + ext
}

func newResolveCmd(a *app) *cobra.Command {
	var companyName string

	cmd := &cobra.Command{
		Use:   "resolve TEXT DATA",
		Short: "Resolve a plain-text template and print the result",
		Long:  "Resolve reads a plain-text template from TEXT (- for stdin) and prints it with DATA applied.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			data, err := docbind.LoadData(args[1])
			if err != nil {
				return err
			}

			var opts []docbind.Option
			if companyName != "" {
				opts = append(opts, docbind.WithCompanyName(companyName))
			}
			engine := a.newEngine(opts...)
			defer engine.Close()

			_, err = io.WriteString(cmd.OutOrStdout(), engine.ProcessString(string(text), data))
			return err
		},
	}

	cmd.Flags().StringVar(&companyName, "company-name", "", "value for {{company_name}}")
	return cmd
}

func newRepairCmd(a *app) *cobra.Command {
	var drawingML bool

	cmd := &cobra.Command{
		Use:   "repair [MARKUP]",
		Short: "Rejoin template tokens split across runs of a markup member",
		Long:  "Repair reads WordprocessingML (or DrawingML with --drawingml) from MARKUP or stdin and prints it with split tokens rejoined.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			markup, err := readInput(cmd, source)
			if err != nil {
				return err
			}

			opts := render.DefaultOptions()
			if drawingML {
				opts.Vocabulary = docxml.DrawingML
			}
			repaired, err := render.RepairFragmentsWith(string(markup), opts)
			if err != nil {
				return fmt.Errorf("repair %s: %w", source, err)
			}
			a.logger.Debug("Repaired %d bytes of markup", len(markup))

			_, err = io.WriteString(cmd.OutOrStdout(), repaired)
			return err
		},
	}

	cmd.Flags().BoolVar(&drawingML, "drawingml", false, "scan a:p/a:r/a:t instead of w:p/w:r/w:t")
	return cmd
}

type validateOptions struct {
	maxIssues  int
	revisionID string
	asJSON     bool
}

func newValidateCmd(a *app) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate DOCX...",
		Short: "Report malformed template syntax",
		Long:  "Validate checks every template member of each DOCX file and exits non-zero when any file has errors.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			multi := docbind.NewMultiError()
			var results []validationReport

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					multi.Add(docbind.NewDocumentError("read", path, err))
					continue
				}

				result, err := docbind.ValidateDocument(docbind.ValidateDocumentInput{
					DocxBytes:          content,
					TemplateRevisionID: opts.revisionID,
					MaxIssues:          opts.maxIssues,
					PayloadMember:      a.config.PayloadMember,
				})
				if err != nil {
					multi.Add(docbind.WithContext(err, "validate", map[string]interface{}{"file": path}))
					continue
				}
				a.logger.WithField("file", path).Debug("Checked %d members", result.Summary.CheckedParts)

				if opts.asJSON {
					results = append(results, validationReport{File: path, ValidateDocumentResult: result})
				} else {
					printValidation(out, path, result)
				}
				if !result.Valid {
					multi.Add(fmt.Errorf("%s: %d template errors", path, result.Summary.ErrorCount))
				}
			}

			if opts.asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(results); err != nil {
					return err
				}
			}
			return multi.Err()
		},
	}

	cmd.Flags().IntVar(&opts.maxIssues, "max-issues", 0, "report at most this many issues per file (0 = all)")
	cmd.Flags().StringVar(&opts.revisionID, "revision", "", "template revision recorded in the JSON report")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the reports as JSON")
	return cmd
}

type validationReport struct {
	File string `json:"file"`
	docbind.ValidateDocumentResult
}

func printValidation(w io.Writer, path string, result docbind.ValidateDocumentResult) {
	if len(result.Issues) == 0 {
		fmt.Fprintf(w, "%s: ok\n", path)
		return
	}
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "%s: %s %s: %s\n", path, issue.Severity, issue.Location, issue.Message)
	}
	if result.IssuesTruncated {
		fmt.Fprintf(w, "%s: %d more issues not shown\n", path,
			result.Summary.ErrorCount+result.Summary.WarningCount-result.Summary.ReturnedIssueCount)
	}
}

func newRefsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refs TEMPLATE",
		Short: "List the data paths a template refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := a.newEngine(docbind.WithCache(0))
			defer engine.Close()

			tmpl, err := engine.PrepareFile(args[0])
			if err != nil {
				return err
			}
			defer tmpl.Close()

			refs, err := tmpl.References()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tPATH\tLOCATION")
			for _, ref := range refs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ref.Kind, ref.Path, ref.Location)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docbind version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docbind %s\n", version)
		},
	}
}

// readInput reads path, or the command's stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, docbind.NewDocumentError("read", path, err)
	}
	return content, nil
}
