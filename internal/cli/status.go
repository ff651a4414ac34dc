package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the vector index is ready",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.svc.Status(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println(st.Label)
		cmd.Printf("  data dir:     %s\n", a.cfg.DataDir)
		cmd.Printf("  vector store: %s (%s)\n", a.cfg.VectorStore.Type, a.cfg.IndexDir)
		if !st.Ready {
			return nil
		}
		cmd.Printf("  embedder:     %s\n", st.Index.Model)
		cmd.Printf("  chunks:       %d\n", st.Index.Count)
		cmd.Printf("  dimension:    %d\n", st.Index.Dimension)
		if !st.Index.BuiltAt.IsZero() {
			cmd.Printf("  built at:     %s\n", st.Index.BuiltAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
