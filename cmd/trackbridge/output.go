package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func addJSONFlag(cmd *cobra.Command, target *bool) {
	cmd.Flags().BoolVar(target, "json", false, "Output as JSON")
}

// emit writes v as indented JSON when asJSON is set and otherwise lets render
// print the human form to the command's stdout.
func emit(cmd *cobra.Command, asJSON bool, v any, render func(out io.Writer)) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		render(out)
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return nil
}
