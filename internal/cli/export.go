package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/internal/registry"
	"github.com/rohmanhakim/sitecrawl/pkg/fileutil"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Emit JSONL/CSV from the registry",
	Long: `export reads every page from the registry and writes one JSON
object per line to <export-path>/pages.jsonl, and every extracted FAQ item
as a row in <export-path>/faq.csv. It never fetches or mutates anything -
re-running it against an unchanged registry produces a byte-identical
export, modulo timestamps.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := buildConfigOrExit()

		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		recorder := metadata.NewRecorder(logger)

		reg, regErr := registry.Open(cfg.RegistryPath(), recorder)
		if regErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open registry: %s\n", regErr)
			os.Exit(1)
		}
		defer reg.Close()

		if dirErr := fileutil.EnsureDir(cfg.ExportPath()); dirErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create export directory: %s\n", dirErr)
			os.Exit(1)
		}

		pages, pagesErr := reg.AllPages()
		if pagesErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read pages: %s\n", pagesErr)
			os.Exit(1)
		}
		if err := writePagesJSONL(filepath.Join(cfg.ExportPath(), "pages.jsonl"), pages); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write pages.jsonl: %s\n", err)
			os.Exit(1)
		}

		faqItems, faqErr := reg.AllFAQItems()
		if faqErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read FAQ items: %s\n", faqErr)
			os.Exit(1)
		}
		if err := writeFAQCSV(filepath.Join(cfg.ExportPath(), "faq.csv"), faqItems); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write faq.csv: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("exported %d pages and %d FAQ items to %s\n", len(pages), len(faqItems), cfg.ExportPath())
	},
}

func writePagesJSONL(path string, pages []registry.Page) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, page := range pages {
		if err := enc.Encode(page); err != nil {
			return err
		}
	}
	return nil
}

func writeFAQCSV(path string, items []registry.FAQItem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"document_url", "question", "answer", "answer_mode"}); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Write([]string{item.DocumentURL, item.Question, item.Answer, item.AnswerMode}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
