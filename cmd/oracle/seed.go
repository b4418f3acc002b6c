package main

import (
	"github.com/spf13/cobra"

	"github.com/praptisharma28/consciousness-oracle/internal/config"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the starting entities in an empty store",
		Args:  cobra.NoArgs,
		RunE:  runSeed,
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	seeded, err := storage.SeedIfEmpty(cmd.Context(), store)
	if err != nil {
		return err
	}
	if seeded {
		cmd.Println("seeded AURA, SPARK and VOID")
	} else {
		cmd.Println("store already has entities; nothing to do")
	}
	return nil
}
