package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and type-check the configuration without crawling",
	Long: `validate builds a Config the same way crawl and export do - from
--config if given, otherwise from the individual override flags - and
reports whether it is well-formed. It never opens a registry or makes a
network request.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := buildConfigOrExit()

		fmt.Println("Configuration is valid")
		fmt.Printf("Seed URLs: %d\n", len(cfg.SeedURLs()))
		fmt.Printf("Allowed hosts: %d\n", len(cfg.AllowedHosts()))
		fmt.Printf("Max depth (FAQ / general): %d / %d\n", cfg.MaxDepthFaq(), cfg.MaxDepthGeneral())
		fmt.Printf("Worker count: %d\n", cfg.WorkerCount())
		fmt.Printf("Registry path: %s\n", cfg.RegistryPath())
		fmt.Printf("Export path: %s\n", cfg.ExportPath())
		os.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
