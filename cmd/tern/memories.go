package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tern/internal/memory"
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "List the durable memories recorded from conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.NewSQLiteStore(memoryPath)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No memories recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tCONTENT\t")
		for _, m := range entries {
			flag := ""
			if m.DeleteSuggested {
				flag = "(deletion suggested)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Content, flag)
		}
		return w.Flush()
	},
}

var memoriesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every memory the model has suggested removing",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.NewSQLiteStore(memoryPath)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		removed := 0
		for _, m := range entries {
			if !m.DeleteSuggested {
				continue
			}
			if err := store.Delete(cmd.Context(), m.ID); err != nil {
				return err
			}
			removed++
		}
		fmt.Printf("Removed %d memories.\n", removed)
		return nil
	},
}

func init() {
	memoriesCmd.AddCommand(memoriesPruneCmd)
	memoriesCmd.PersistentFlags().StringVar(&memoryPath, "memory-db", defaultMemoryPath(), "memory database path")
}
