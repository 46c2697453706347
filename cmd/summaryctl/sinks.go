package main

import (
	"context"
	"os/user"

	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/config"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/infrastructure/postgres"
	"github.com/drfirst/go-summaryview/internal/infrastructure/redpanda"
	"github.com/drfirst/go-summaryview/internal/summary"
)

// sinkOpener returns the audit sinks for a command and a func releasing
// them once the recorder has stopped.
type sinkOpener func(ctx context.Context, cfg *config.Config) ([]audit.Sink, func(), error)

// openAuditSinks connects the sinks the service would use. With neither
// DATABASE_URL nor KAFKA_BROKERS set, events go nowhere.
func openAuditSinks(ctx context.Context, cfg *config.Config) ([]audit.Sink, func(), error) {
	var (
		sinks   []audit.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		accessLog := postgres.NewAccessLog(pool, nil)
		if err := accessLog.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, accessLog)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err := redpanda.NewProducer(producerCfg, zap.NewNop())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { producer.Close() })
		sinks = append(sinks, redpanda.NewAuditPublisher(producer))
	}

	return sinks, closeAll, nil
}

// cliAccessEvent describes one summaryctl lookup. sum is nil when the fetch
// failed.
func cliAccessEvent(patientID string, err error, sum *summary.Summary) audit.AccessEvent {
	ev := audit.AccessEvent{
		Subject:    operator(),
		PatientID:  patientID,
		Outcome:    fetcher.Outcome(err),
		StatusCode: fetcher.StatusCode(err),
		Channel:    audit.ChannelCLI,
	}
	if sum != nil {
		ev.Allergies = len(sum.Allergies)
		ev.Medications = len(sum.Medications)
	}
	return ev
}

// operator names the local account running the command.
func operator() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
