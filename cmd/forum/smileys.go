package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/forum/internal/db"
	"github.com/memohai/forum/internal/smiley"
)

var smileysCmd = &cobra.Command{
	Use:   "smileys",
	Short: "Manage the smiley table",
}

var smileysImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Upsert smileys from a YAML seed file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.Smileys.SeedFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("seed file is required")
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		items, err := smiley.ParseSeed(f)
		if err != nil {
			return err
		}
		// Validate the whole set before touching the table.
		if _, err := smiley.NewSnapshot(items); err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()
		n, err := db.NewSmileyStore(pool).Import(ctx, items)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d smileys from %s\n", n, path)
		return nil
	},
}

func init() {
	smileysCmd.AddCommand(smileysImportCmd)
}
