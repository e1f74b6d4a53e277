package main

import (
	"github.com/spf13/cobra"
)

func newResyncSequencesCmd() *cobra.Command {
	var (
		family string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "resync-sequences",
		Short: "Repair internal-id sequences that drifted from their tables",
		Long: `Repair each family's internal-id sequence so the next issued id is past
MAX(internal_id). Without --force only sequences that have fallen behind are
touched; --force re-derives every sequence from its table, which is the
repair for drift in either direction.`,
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
			for _, f := range families {
				if err := e.store.ResyncSequence(cmd.Context(), f, force); err != nil {
					return err
				}
				e.log.Info("sequence resynced", "family", f.Name, "force", force)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "limit to one family (default: all)")
	cmd.Flags().BoolVar(&force, "force", false, "re-derive the sequence unconditionally")
	return cmd
}
