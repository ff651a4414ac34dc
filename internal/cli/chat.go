package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"documind/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat interface",
	Long: `Starts a terminal chat over the indexed documents.

Keys: enter asks, tab shows or hides sources, ctrl+r reindexes the data
directory, "/upload <files...>" adds documents, ctrl+c quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		m := tui.New(cmd.Context(), a.svc)
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
