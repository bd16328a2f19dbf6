package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/worker"
)

func newSweepCmd(cfg *config.Config) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass against the shared Redis queue",
		Long: `Reclaims records whose worker lease expired and re-enqueues pending
or due retryable records. The in-memory queue belongs to a running server,
so this command requires QUEUE_BACKEND=redis.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.QueueBackend != "redis" {
				return errors.New("sweep needs QUEUE_BACKEND=redis; an in-memory queue is swept by the server")
			}
			ctx := cmd.Context()

			db, err := openStore(*cfg)
			if err != nil {
				return err
			}
			defer closeStore(db)

			q, err := openQueue(ctx, *cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			res, err := (&worker.Reconciler{
				DB:           db,
				Queue:        q,
				PendingGrace: cfg.Worker.PendingGrace,
				BatchSize:    batch,
			}).Sweep(ctx)
			if err != nil {
				return err
			}
			log.Info().
				Int("reclaimed", res.Reclaimed).
				Int("requeued", res.Requeued).
				Int("dropped", res.Dropped).
				Msg("sweep complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "maximum records handled per step")
	return cmd
}
