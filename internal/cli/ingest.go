package cli

import (
	"time"

	"github.com/spf13/cobra"

	"documind/internal/loader"
	"documind/internal/service"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the documents in the data directory",
	Long: `Loads every .md and .pdf file directly inside the data directory, splits
them into overlapping chunks and replaces the vector index with them.
The previous index stays in place if anything goes wrong.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIngest(cmd, ingestDir)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the configured data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIngest(cmd, "")
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Copy .md/.pdf files into the data directory and reindex",
	Long: `Copies each file into the data directory under its base name and rebuilds
the index. A file with the same name is overwritten.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "directory to index (default data_dir from config)")
	rootCmd.AddCommand(ingestCmd, reindexCmd, uploadCmd)
}

func runIngest(cmd *cobra.Command, dir string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if dir == "" {
		dir = a.cfg.DataDir
	}
	report, err := a.svc.Ingest(cmd.Context(), dir, printProgress(cmd))
	printReport(cmd, report)
	return err
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads := make([]loader.Upload, len(args))
	for i, p := range args {
		uploads[i] = loader.FileUpload(p)
	}
	report, err := a.svc.IngestUploads(cmd.Context(), uploads, printProgress(cmd))
	printReport(cmd, report)
	return err
}

func printProgress(cmd *cobra.Command) func(service.Progress) {
	return func(p service.Progress) {
		cmd.Printf("[%s] %s\n", p.Stage, p.Message)
	}
}

func printReport(cmd *cobra.Command, r service.IngestReport) {
	for _, f := range r.Failures {
		cmd.Printf("  skipped %s: %v\n", f.Path, f.Err)
	}
	switch r.Outcome {
	case service.IngestEmpty:
		cmd.Println("No documents were indexed; the existing index was left unchanged.")
	case service.IngestSucceeded:
		cmd.Printf("Indexed %d chunks from %d documents (%d files) in %s.\n",
			r.Chunks, r.Documents, r.Files, r.Took.Round(time.Millisecond))
		if r.Summary != "" {
			cmd.Println()
			cmd.Println("Summary:", r.Summary)
		}
	}
}
