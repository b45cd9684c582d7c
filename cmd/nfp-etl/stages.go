// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshintel/nfp-etl/internal/schema"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the extraction stages and their field tables",
	Long: `Stages prints every extraction stage in pipeline order with its output
shape and declared fields, exactly as the parser and coercer validate them.`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, sc := range schema.Stages() {
			fmt.Fprintf(os.Stdout, "%s (%s)\n", sc.Name, sc.Shape)
			for _, name := range sc.FieldOrder {
				spec := sc.Fields[name]
				if spec.Kind == schema.KindEnum {
					fmt.Fprintf(os.Stdout, "  %-34s enum: %s\n", name, strings.Join(spec.Enum, ", "))
					continue
				}
				fmt.Fprintf(os.Stdout, "  %-34s %s\n", name, spec.Kind)
			}
			fmt.Fprintln(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}
