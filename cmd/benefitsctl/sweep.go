package main

import (
	"fmt"
	"time"

	"github.com/abduss/benefits/internal/storage"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration

	sweepCmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete unfinished uploads left by crashed processes",
		Long: `Delete stored objects that were created but never finalized.

Objects younger than --older-than are left alone so that uploads still in
flight are not disturbed. The default comes from CHUNKSTORE_ORPHAN_TTL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			chunks, err := storage.OpenChunkStore(cmd.Context(), e.cfg, e.pool, e.log)
			if err != nil {
				return err
			}
			defer chunks.Store.Close()

			ttl := e.cfg.ChunkStore.OrphanTTL
			if cmd.Flags().Changed("older-than") {
				ttl = olderThan
			}
			removed, err := chunks.Store.SweepOrphans(cmd.Context(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned object(s)\n", removed)
			return nil
		},
	}
	sweepCmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "minimum age of an open object before it is removed")
	return sweepCmd
}
