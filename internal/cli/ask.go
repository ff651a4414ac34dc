package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"documind/internal/answer"
	"documind/internal/domain"
)

var askNoSources bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed documents",
	Long: `Retrieves the chunks most similar to the question and asks the language
model to answer from them only. The sources are printed below the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoSources, "no-sources", false, "do not print the evidence chunks")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	reply, err := a.svc.Query(cmd.Context(), question)
	cmd.Println(reply.Text)
	if err != nil {
		if errors.Is(err, domain.ErrIndexMissing) {
			cmd.Println("Run `documind ingest` to build the index.")
		}
		return err
	}
	if askNoSources || len(reply.Evidence) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, c := range reply.Evidence {
		cmd.Printf("  [%d] %s\n", i+1, c.SourcePath)
		cmd.Printf("      %s\n", strings.ReplaceAll(answer.Preview(c.Text, answer.PreviewLength), "\n", " "))
	}
	return nil
}
