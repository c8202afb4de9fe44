package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/descriptor"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the metadata surface of an annotated module",
	Long: `Print every item declared in the module's "wasmbind" section:
functions, structs and methods, with visibility and signatures.

With --wit the public surface is rendered as WIT-style text instead.`,
	Run: runInspect,
}

func init() {
	inspectCmd.Flags().StringP("input", "i", "", "Annotated .wasm module (required)")
	inspectCmd.Flags().Bool("wit", false, "Render the public surface as WIT-style text")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) {
	input, _ := cmd.Flags().GetString("input")
	witOut, _ := cmd.Flags().GetBool("wit")

	if input == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmbind inspect -i <module.wasm> [--wit]")
		os.Exit(1)
	}

	set, err := wasmbind.Inspect(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if witOut {
		text, err := descriptor.RenderWIT(set)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(text)
		return
	}

	fmt.Printf("%-28s %-9s %-9s %s\n", "NAME", "KIND", "VIS", "SIGNATURE")
	for _, it := range set.Items {
		switch it.Kind {
		case descriptor.KindStructDef:
			methods := 0
			if st, ok := set.Struct(it.StructID); ok {
				methods = len(st.Methods)
			}
			fmt.Printf("%-28s %-9s %-9s %d methods\n",
				it.Name, it.Kind, it.Visibility, methods)
		case descriptor.KindMethod:
			name := it.Name
			if it.Owner != nil {
				name = it.Owner.Name + "." + it.Name
			}
			fmt.Printf("%-28s %-9s %-9s %s\n",
				name, it.Kind, it.Visibility, it.Signature())
		default:
			fmt.Printf("%-28s %-9s %-9s %s\n",
				it.Name, it.Kind, it.Visibility, it.Signature())
		}
	}
}
