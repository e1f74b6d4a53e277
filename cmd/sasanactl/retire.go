package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sasana/internal/registry/store/retired"
)

func newRetireOrphansCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "retire-orphans",
		Short: "Back-fill the tombstone index from already soft-deleted rows",
		Long: `Write a retired_codes tombstone for every soft-deleted row that predates
tombstoning, so reuse prevention survives a later purge of those rows. When a
Redis URL is configured the tombstones are mirrored there too. Idempotent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			idx, err := buildRetiredIndex(e)
			if err != nil {
				return err
			}

			families, err := e.resolveFamilies(family)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			for _, f := range families {
				deleted, err := e.store.ListDeletedCodes(ctx, f)
				if err != nil {
					return err
				}
				for _, dc := range deleted {
					entry := retired.Entry{
						Family:     f.Name,
						PublicCode: dc.PublicCode,
						RetiredBy:  dc.DeletedBy,
						RetiredAt:  dc.DeletedAt,
					}
					if err := idx.Retire(ctx, entry); err != nil {
						return err
					}
				}
				e.log.Info("tombstones back-filled", "family", f.Name, "count", len(deleted))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "limit to one family (default: all)")
	return cmd
}

// buildRetiredIndex assembles the durable tombstone index for the configured
// backend, mirrored into Redis when one is configured.
func buildRetiredIndex(e *env) (retired.Index, error) {
	var primary retired.Index
	switch e.cfg.Database.Driver {
	case "postgres":
		primary = retired.NewPostgres(e.db)
	case "sqlite":
		primary = retired.NewSQLite(e.db)
	}

	if e.cfg.RedisURL == "" {
		return primary, nil
	}
	opts, err := redis.ParseURL(e.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	cache := retired.NewRedis(redis.NewClient(opts))
	return retired.NewMirrored(primary, cache, e.log), nil
}
