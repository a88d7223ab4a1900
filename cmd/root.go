package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facepace",
	Short: "Face enrollment and recognition backend",
	Long: `FacePace enrolls people from face photos and recognizes them later,
optionally narrowed to a group or an explicit list of people.

Embeddings are computed by an external model server (EMBEDDING_URL) and stored
in PostgreSQL with pgvector or in a local bbolt file (STORAGE_BACKEND).`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
