// Command mozi runs WebAssembly modules on a gcroot engine runtime.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/gcroot/engine"
	"github.com/wippyai/gcroot/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "mozi",
	Short:         "Run WebAssembly modules on a rooted engine heap",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		mode, _ := cmd.Flags().GetString("color")
		return setColor(mode, os.Stderr)
	},
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("log-level", "", "log level, overrides the config file")

	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func setColor(mode string, out *os.File) error {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(out)
	default:
		return fmt.Errorf("unknown color mode %q", mode)
	}
	return nil
}

// newLogger builds the console logger used by the engine.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if color.NoColor {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core), nil
}

// scriptError is an uncaught exception reported by the engine.
type scriptError struct {
	info engine.ErrorInfo
}

func (e *scriptError) Error() string { return e.info.String() }

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	exitLabel  = color.New(color.FgYellow)
)

func printError(w io.Writer, err error) {
	var exit *engine.ExitError
	if stderrors.As(err, &exit) {
		exitLabel.Fprintf(w, "%s\n", exit)
		return
	}
	var script *scriptError
	if stderrors.As(err, &script) {
		errorLabel.Fprint(w, "Error")
		fmt.Fprintf(w, " at %s:%d:%d %s\n", script.info.Filename, script.info.Line, script.info.Column, script.info.Message)
		return
	}
	errorLabel.Fprint(w, "error:")
	fmt.Fprintf(w, " %v\n", err)
}

// exitCode maps a proc_exit status to the process status. Everything else
// exits with 1.
func exitCode(err error) int {
	var exit *engine.ExitError
	if stderrors.As(err, &exit) {
		return int(exit.Code)
	}
	return 1
}
