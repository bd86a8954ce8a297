package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var mode, domain, prefix string
	var k int
	searchCmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Query the note index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"text": args[0],
				"mode": mode,
				"k":    k,
			}
			if domain != "" {
				payload["domain"] = domain
			}
			if prefix != "" {
				payload["prefix"] = prefix
			}
			data, err := doPostJSON(apiFlag+"/api/search", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	searchCmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "Scoring mode: hybrid or lexical")
	searchCmd.Flags().StringVarP(&domain, "domain", "d", "", "Domain filter")
	searchCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Canonical path prefix filter")
	searchCmd.Flags().IntVarP(&k, "topk", "k", 10, "Number of documents to return")
	rootCmd.AddCommand(searchCmd)
}
