package main

import (
	"time"

	"github.com/spf13/cobra"

	"sasana/internal/registry/codes"
)

func newSeedCountersCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "seed-counters",
		Short: "Initialize allocation counters from the codes already issued",
		Long: `Write a code_counters row per family (and per current-year scope for
year-scoped families) holding the highest number already in the table, so
counter-strategy allocation can be enabled over existing data without
reissuing a code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			families, err := e.resolveFamilies(family)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, f := range families {
				scope := codes.ScopeKey(f, now)
				last, err := e.store.SeedCounter(cmd.Context(), f, scope)
				if err != nil {
					return err
				}
				e.log.Info("counter seeded", "family", f.Name, "scope", scope, "last_issued", last)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "limit to one family (default: all)")
	return cmd
}
