package commands

import (
	"context"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hyperledger/sawtooth-sdk-go/processor"
	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/handler"
	"github.com/cargomesh/mfgbatch/internal/logger"
	"github.com/cargomesh/mfgbatch/internal/telemetry"
)

type StartCmd struct {
	Connect    string        `help:"validator component endpoint" default:"tcp://localhost:4004" env:"MFGBATCH_CONNECT"`
	Queue      uint          `help:"maximum queue size for pending transactions" default:"100" env:"MFGBATCH_QUEUE"`
	Threads    uint          `help:"number of worker threads" default:"0" env:"MFGBATCH_THREADS"`
	Tracing    bool          `help:"enable OTLP telemetry export" default:"false" env:"MFGBATCH_TRACING"`
	MaxElapsed time.Duration `help:"give up reconnecting to the validator after this long" default:"5m" env:"MFGBATCH_MAX_ELAPSED"`
}

func (c *StartCmd) Run(ctx context.Context, globals *Globals) error {
	zl := logger.Setup(globals.Debug)
	log.Logger = zl

	if c.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "mfgbatch-processor", globals.Version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown")
			}
		}()
	}

	log.Info().
		Str("version", globals.Version).
		Str("endpoint", c.Connect).
		Msg("starting transaction processor")

	reconnects := telemetry.GetMetrics().ValidatorReconnectsTotal

	// The SDK's Start returns when the validator connection drops, so
	// restart it with exponential backoff until the context is done or
	// the elapsed budget runs out.
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		proc := processor.NewTransactionProcessor(c.Connect)
		if c.Queue > 0 {
			proc.SetMaxQueueSize(c.Queue)
		}
		if c.Threads > 0 {
			proc.SetThreadCount(c.Threads)
		}
		proc.AddHandler(handler.NewMfgBatchHandler())
		proc.ShutdownOnSignal(syscall.SIGINT, syscall.SIGTERM)

		if err := proc.Start(); err != nil {
			reconnects.Add(ctx, 1)
			log.Warn().Err(err).Str("endpoint", c.Connect).Msg("validator connection lost, retrying")
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.MaxElapsed),
	)
	if err != nil {
		return err
	}

	log.Info().Msg("transaction processor stopped")
	return nil
}
