package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/profile"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate bindings for an annotated module",
	Long: `Run the full pipeline: parse the module, extract its metadata,
derive marshalling rules, strip internal exports, and write the trimmed
module plus JavaScript glue into the output directory.

Nothing is written unless every stage succeeds.`,
	Run: runGenerate,
}

func init() {
	generateCmd.Flags().StringP("input", "i", "", "Annotated .wasm module (required)")
	generateCmd.Flags().StringP("out", "o", "", "Output directory (required)")
	generateCmd.Flags().String("target", profile.TagEmbeddedWeb,
		"Target environment: "+strings.Join(profile.Tags(), ", "))
	generateCmd.Flags().Bool("emit-types", false, "Write TypeScript declarations")
	generateCmd.Flags().String("name", "", "Artifact base name (default: input stem)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("out")
	target, _ := cmd.Flags().GetString("target")
	emitTypes, _ := cmd.Flags().GetBool("emit-types")
	name, _ := cmd.Flags().GetString("name")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	cfg := wasmbind.Config{
		InputPath:  input,
		OutDir:     out,
		Target:     target,
		ModuleName: name,
		EmitTypes:  emitTypes,
	}
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = logger.Sync() }()
		cfg.Logger = logger
	}

	res, err := wasmbind.Generate(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Module: %s\n", res.ModulePath)
	fmt.Printf("Glue:   %s\n", res.GluePath)
	if res.TypesPath != "" {
		fmt.Printf("Types:  %s\n", res.TypesPath)
	}
	fmt.Printf("Public surface: %d functions, %d structs\n",
		len(res.Set.PublicFunctions()), len(res.Set.PublicStructs()))
}
