// Command pipegen generates Go render pipeline code from .pmd pipeline
// description files.
//
// Usage:
//
//	pipegen generate pipelines.pmd -o shaders/pipelines_gen.go --package shaders
//	pipegen watch pipelines.pmd -o shaders/pipelines_gen.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gogpu/pipegen"
	"github.com/spf13/cobra"
)

var (
	outPath     string
	packageName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "pipegen",
	Short: "Generate render pipeline code from .pmd files",
	Long: `pipegen turns pipeline description (.pmd) files into Go source.

Each #render_pipeline block produces a typed constructor that builds a
wgpu render pipeline. The referenced WGSL shaders are validated and
their interface (vertex attributes, color targets, bindings) is
reflected into the generated descriptor.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		pipegen.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <config.pmd>",
	Short: "Generate pipeline code once and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var watchCmd = &cobra.Command{
	Use:   "watch <config.pmd>",
	Short: "Generate, then regenerate whenever the inputs change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, watchCmd} {
		cmd.Flags().StringVarP(&outPath, "out", "o", "",
			"output file (default: <config>_gen.go, '-' for stdout with generate)")
		cmd.Flags().StringVar(&packageName, "package", "pipelines",
			"package name of the generated file")
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	rootCmd.AddCommand(generateCmd, watchCmd)
}

// defaultOutPath derives the output path from the config path:
// pipelines.pmd becomes pipelines_gen.go.
func defaultOutPath(configPath string) string {
	return strings.TrimSuffix(configPath, ".pmd") + "_gen.go"
}

func runGenerate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	g := pipegen.NewGenerator(pipegen.WithPackageName(packageName))

	out, err := g.GenerateFile(cmd.Context(), configPath)
	if err != nil {
		return err
	}

	if outPath == "-" {
		_, err := os.Stdout.Write(out)
		return err
	}
	target := outPath
	if target == "" {
		target = defaultOutPath(configPath)
	}
	return pipegen.WriteFileAtomic(target, out)
}

func runWatch(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	target := outPath
	if target == "" {
		target = defaultOutPath(configPath)
	}

	g := pipegen.NewGenerator(pipegen.WithPackageName(packageName))
	w, err := pipegen.NewWatcher(g, configPath, target)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pipegen:", err)
		os.Exit(1)
	}
}
