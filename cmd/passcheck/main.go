// Command passcheck runs render pass scenarios through the renderpass
// validator and inspects encoded command streams.
//
// Usage:
//
//	passcheck run scenario.toml [--trace out.yaml] [--dump stream.bin]
//	passcheck decode stream.bin
//	passcheck backends
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gogpu/renderpass"
	"github.com/gogpu/renderpass/backend"
	_ "github.com/gogpu/renderpass/backend/halbackend"
	"github.com/gogpu/renderpass/backend/noop"
	_ "github.com/gogpu/renderpass/backend/vkbackend"
	"github.com/gogpu/renderpass/command"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "passcheck",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
		l.SetReportCaller(true)
	}
	return l
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "passcheck",
		Short:        "Validate render pass command streams",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			renderpass.SetLogger(slog.New(newLogger(verbose)))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log validation details")
	root.AddCommand(newRunCmd(), newDecodeCmd(), newBackendsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var tracePath, dumpPath string
	cmd := &cobra.Command{
		Use:   "run scenario.toml",
		Short: "Run a scenario on the noop backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			s, err := LoadScenario(argv[0])
			if err != nil {
				return err
			}
			if tracePath != "" {
				s.Config.Trace = tracePath
			}
			rep, err := Run(s, noop.NewDevice())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			if dumpPath != "" {
				if err := dumpStreams(dumpPath, rep); err != nil {
					return err
				}
			}
			if n := rep.Failed(); n > 0 {
				return fmt.Errorf("%d of %d passes did not match their expectation", n, len(rep.Passes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "", "write the trace log to `file`")
	cmd.Flags().StringVar(&dumpPath, "dump", "", "write the encoded pass streams to `file`")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode stream.bin",
		Short: "Print the commands of an encoded stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			data, err := os.ReadFile(argv[0])
			if err != nil {
				return err
			}
			return printStreams(cmd.OutOrStdout(), data)
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends and whether they open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, name := range backend.Available() {
				dev, err := backend.Open(name)
				if err != nil {
					fmt.Fprintf(w, "%-8s unavailable: %v\n", name, err)
					continue
				}
				fmt.Fprintf(w, "%-8s ok (%T)\n", name, dev)
				if c, ok := dev.(interface{ Close() }); ok {
					c.Close()
				}
			}
			return nil
		},
	}
}

func printReport(w io.Writer, rep *Report) {
	for _, p := range rep.Passes {
		status := "ok"
		if !p.OK {
			status = "FAIL"
		}
		switch {
		case p.Err != nil:
			fmt.Fprintf(w, "%-4s %s: %v\n", status, p.Label, p.Err)
		default:
			fmt.Fprintf(w, "%-4s %s: %d bytes, %s\n", status, p.Label, len(p.Stream), strings.Join(p.Ops, " "))
		}
	}
	fmt.Fprintf(w, "render passes: %d cached, %d hits; framebuffers: %d cached, %d hits\n",
		rep.Cache.RenderPasses, rep.Cache.RenderPassHits, rep.Cache.Framebuffers, rep.Cache.FramebufferHits)
}

// dumpStreams writes the encoded streams of every pass back to back.
func dumpStreams(path string, rep *Report) error {
	var data []byte
	for _, p := range rep.Passes {
		data = append(data, p.Stream...)
	}
	return os.WriteFile(path, data, 0o644)
}

// printStreams prints the commands of one or more concatenated streams.
// A stream ends at its End record; bytes after it start the next one.
func printStreams(w io.Writer, data []byte) error {
	base := 0
	for n := 0; ; n++ {
		fmt.Fprintf(w, "stream %d\n", n)
		dec := command.NewDecoder(data[base:])
		for {
			at := base + dec.Offset()
			c, err := dec.Next()
			var ferr *command.FramingError
			if errors.As(err, &ferr) && ferr.Kind == command.TrailingData {
				fmt.Fprintf(w, "  %6d %s\n", at, command.CmdEnd)
				base += ferr.Offset
				break
			}
			if err != nil {
				return fmt.Errorf("stream %d: %w", n, err)
			}
			fmt.Fprintf(w, "  %6d %-22s %+v\n", at, c.Type(), c)
			if _, ok := c.(command.End); ok {
				return nil
			}
		}
	}
}
