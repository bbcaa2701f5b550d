package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suda-labs/suda/internal/item"
)

func init() {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the built-in conversation topics",
		Run:   runTopics,
	}

	RootCmd.AddCommand(cmd)
}

func runTopics(cmd *cobra.Command, args []string) {
	if formatFlag == "text" {
		for _, t := range item.DefaultTopics {
			fmt.Printf("%-16s %s\n", t.ID, t.Summary)
		}
		return
	}
	b, _ := json.MarshalIndent(item.DefaultTopics, "", "  ")
	fmt.Println(string(b))
}
