package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/config"
	"github.com/drfirst/go-summaryview/internal/infrastructure/postgres"
	"github.com/drfirst/go-summaryview/internal/infrastructure/redpanda"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the patient summary access trail",
	}

	historyCmd := &cobra.Command{
		Use:   "history <patient-id>",
		Short: "List recent accesses to a patient's summary from PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			ctx := context.Background()
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			events, err := postgres.NewAccessLog(pool, nil).Recent(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for i := range events {
				printEvent(cmd, &events[i])
			}
			return nil
		},
	}
	historyCmd.Flags().Int("limit", 20, "Maximum number of events")
	cmd.AddCommand(historyCmd)

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete access events older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			ctx := context.Background()
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := postgres.NewAccessLog(pool, nil).Purge(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d access events\n", n)
			return nil
		},
	}
	purgeCmd.Flags().Duration("older-than", 30*24*time.Hour, "Retention period")
	cmd.AddCommand(purgeCmd)

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream access events from the audit topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStart, _ := cmd.Flags().GetBool("from-beginning")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is not set")
			}

			consumerCfg := redpanda.DefaultConsumerConfig()
			consumerCfg.Brokers = cfg.KafkaBrokers
			if !fromStart {
				consumerCfg.StartOffset = "latest"
			}

			consumer, err := redpanda.NewConsumer(consumerCfg, func(_ context.Context, ev *audit.AccessEvent) error {
				printEvent(cmd, ev)
				return nil
			}, zap.NewNop())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return consumer.Run(ctx)
		},
	}
	tailCmd.Flags().Bool("from-beginning", false, "Replay the retained trail before following")
	cmd.AddCommand(tailCmd)

	return cmd
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage Redpanda topics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the audit topic if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is not set")
			}

			ctx := context.Background()
			if err := redpanda.HealthCheck(ctx, cfg.KafkaBrokers); err != nil {
				return err
			}
			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, nil)
			if err != nil {
				return err
			}
			defer admin.Close()
			if err := admin.EnsureTopics(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "topic %s ready\n", redpanda.TopicAuditTrail)
			return nil
		},
	})
	return cmd
}

func printEvent(cmd *cobra.Command, ev *audit.AccessEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
