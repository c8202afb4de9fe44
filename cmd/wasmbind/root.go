package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wasmbind",
	Short: "Binding generator for annotated WebAssembly modules",
	Long: `wasmbind - Generate JavaScript bindings for WebAssembly modules.

Reads a module carrying a "wasmbind" metadata section describing its
exported functions and structs, strips the metadata and internal
exports, and writes a trimmed module plus JavaScript glue (and optional
TypeScript declarations) for a chosen target environment.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
