package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"freightflow/internal/logging"
)

var (
	seedDir   string
	seedWatch bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load rule YAML files into the database",
	Long: `Upserts detection patterns, action rules, flow validation rules,
completion keywords, and enum mappings from YAML files in the seed
directory. Seeding is idempotent; pattern hit counters survive re-seeds.

With --watch, stays running and re-seeds whenever a file changes.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "seed directory (default: FREIGHTFLOW_SEED_DIR)")
	seedCmd.Flags().BoolVar(&seedWatch, "watch", false, "keep running and re-seed on file changes")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	dir := seedDir
	if dir == "" {
		dir = a.cfg.SeedDir
	}
	if dir == "" {
		return fmt.Errorf("no seed directory: pass --dir or set FREIGHTFLOW_SEED_DIR")
	}

	if err := a.store.SeedRules(ctx, dir); err != nil {
		return err
	}
	logging.L(logging.CategoryBoot).Infow("rules seeded", "dir", dir)

	if !seedWatch {
		return nil
	}
	return a.store.WatchSeeds(ctx, dir, func() {
		a.provider.Invalidate()
		a.matcher.Reload()
	})
}
