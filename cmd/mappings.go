package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridata/crosscheck-cli/internal/config"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Work with field mapping files",
}

var mappingsLintCmd = &cobra.Command{
	Use:   "lint <mappings-file>",
	Short: "Validate a mapping file without running anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, set, err := config.LoadMappings(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "OK: %d fields (%d required), url template %s\n",
			len(set.Mappings), len(set.Required()), tmpl)
		return nil
	},
}

func init() {
	mappingsCmd.AddCommand(mappingsLintCmd)
	rootCmd.AddCommand(mappingsCmd)
}
