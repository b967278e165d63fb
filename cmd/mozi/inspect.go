package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/engine"
	"github.com/wippyai/gcroot/gcsafe"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <module.wasm>",
	Short: "List the imports and exports of a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wasm, err := readModule(args[0])
		if err != nil {
			return err
		}
		return inspectModule(cmd.Context(), wasm, cmd.OutOrStdout())
	},
}

var (
	sectionStyle = color.New(color.Bold)
	nameStyle    = color.New(color.FgGreen)
)

func inspectModule(ctx context.Context, wasm []byte, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := engine.New(ctx, engine.DefaultConfig(), engine.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var (
		imports []engine.Import
		exports []engine.Export
	)
	err = rt.Do(ctx, func(cx *gcsafe.Context) error {
		script, err := engine.CompileModule(cx, wasm)
		if err != nil {
			return pendingError(cx, err)
		}
		defer script.Release()

		nogc := cx.NoGC()
		defer nogc.Release()
		imports = engine.ModuleImports(nogc, script)
		exports = engine.ModuleExports(nogc, script)
		return nil
	})
	if err != nil {
		return err
	}

	sectionStyle.Fprintf(out, "Imports (%d)\n", len(imports))
	for _, imp := range imports {
		fmt.Fprintf(out, "  %s.%s%s\n", imp.Module, nameStyle.Sprint(imp.Name), signature(imp.Params, imp.Result))
	}
	sectionStyle.Fprintf(out, "Exports (%d)\n", len(exports))
	for _, exp := range exports {
		if exp.Kind == "memory" {
			fmt.Fprintf(out, "  %s memory\n", nameStyle.Sprint(exp.Name))
			continue
		}
		fmt.Fprintf(out, "  %s%s\n", nameStyle.Sprint(exp.Name), signature(exp.Params, exp.Result))
	}
	return nil
}

func signature(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteString("(")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteString(")")
	if len(results) > 0 {
		names := make([]string, len(results))
		for i, r := range results {
			names[i] = api.ValueTypeName(r)
		}
		b.WriteString(" -> " + strings.Join(names, ", "))
	}
	return b.String()
}
