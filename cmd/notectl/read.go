package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	getCmd := &cobra.Command{
		Use:   "get DOMAIN PATH",
		Short: "Get a file with its links and backlinks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := fmt.Sprintf("%s/api/domains/%s/file?path=%s",
				apiFlag, url.PathEscape(args[0]), url.QueryEscape(args[1]))
			data, err := doGet(u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(getCmd)

	var prefix string
	treeCmd := &cobra.Command{
		Use:   "tree DOMAIN",
		Short: "List the live note tree for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := fmt.Sprintf("%s/api/domains/%s/tree?prefix=%s",
				apiFlag, url.PathEscape(args[0]), url.QueryEscape(prefix))
			data, err := doGet(u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	treeCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Canonical path prefix filter")
	rootCmd.AddCommand(treeCmd)

	var graphDomain, graphPrefix string
	var unresolved bool
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Dump the link graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := fmt.Sprintf("%s/api/graph?domain=%s&prefix=%s&includeUnresolved=%t",
				apiFlag, url.QueryEscape(graphDomain), url.QueryEscape(graphPrefix), unresolved)
			data, err := doGet(u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	graphCmd.Flags().StringVarP(&graphDomain, "domain", "d", "", "Domain filter")
	graphCmd.Flags().StringVarP(&graphPrefix, "prefix", "p", "", "Canonical path prefix filter")
	graphCmd.Flags().BoolVar(&unresolved, "unresolved", true, "Include ghost nodes and unresolved edges")
	rootCmd.AddCommand(graphCmd)

	var after int64
	var limit int
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Page the event change feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := fmt.Sprintf("%s/api/sync/events?after=%d&limit=%d", apiFlag, after, limit)
			data, err := doGet(u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	syncCmd.Flags().Int64Var(&after, "after", 0, "Cursor to resume from")
	syncCmd.Flags().IntVar(&limit, "limit", 100, "Max events per page")
	rootCmd.AddCommand(syncCmd)
}
