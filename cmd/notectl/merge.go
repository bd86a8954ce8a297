package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var maxJobs int
	mergeCmd := &cobra.Command{
		Use:   "merge-jobs",
		Short: "Merge-job operations",
	}
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Process pending merge jobs now",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/api/merge-jobs/process?max=%d", apiFlag, maxJobs), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	processCmd.Flags().IntVar(&maxJobs, "max", 50, "Max jobs per batch")
	mergeCmd.AddCommand(processCmd)
	rootCmd.AddCommand(mergeCmd)
}
