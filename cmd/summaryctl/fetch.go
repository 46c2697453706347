package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/config"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/summary"
	"github.com/drfirst/go-summaryview/pkg/workerpool"
)

func fetchCmd() *cobra.Command {
	return newFetchCmd(openAuditSinks)
}

func newFetchCmd(openSinks sinkOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <patient-id>",
		Short: "Fetch a patient summary and print its three sections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID := ""
			if len(args) == 1 {
				patientID = args[0]
			}
			output, _ := cmd.Flags().GetString("output")
			match, _ := cmd.Flags().GetString("match")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if match == "" {
				match = cfg.ReferenceMatch
			}

			client, err := fetcher.New(fetcher.Config{
				BaseURL: cfg.SummaryAPIURL,
				Timeout: cfg.FetchTimeout,
			}, zap.NewNop())
			if err != nil {
				return err
			}
			if err := client.Validate(patientID); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			sinks, closeSinks, err := openSinks(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open audit trail: %w", err)
			}
			defer closeSinks()
			recorder, err := audit.NewRecorder(workerpool.DefaultConfig(), sinks, nil, zap.NewNop())
			if err != nil {
				return err
			}
			recorder.Start()
			defer func() {
				if err := recorder.Stop(); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "audit:", err)
				}
			}()

			bundle, err := client.FetchSummary(ctx, patientID)
			if err != nil {
				recorder.Record(ctx, cliAccessEvent(patientID, err, nil))
				return err
			}
			sum := summary.Build(bundle, summary.ParseMatcher(match))
			recorder.Record(ctx, cliAccessEvent(patientID, nil, &sum))

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			case "bundle":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			case "text":
				return printSummary(cmd.OutOrStdout(), sum)
			default:
				return fmt.Errorf("unknown output %q (want text, json or bundle)", output)
			}
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format: text, json or bundle")
	cmd.Flags().String("match", "", "Reference matching: substring or exact (default from REFERENCE_MATCH)")
	return cmd
}

func printSummary(w io.Writer, sum summary.Summary) error {
	fmt.Fprintln(w, "Patient Demographics")
	if !sum.Demographics.Found {
		fmt.Fprintf(w, "  %s\n", summary.NoPatientMessage)
	} else {
		d := sum.Demographics
		fmt.Fprintf(w, "  Full Name:  %s\n", d.FullName)
		fmt.Fprintf(w, "  Gender:     %s\n", d.Gender)
		fmt.Fprintf(w, "  Birth Date: %s\n", d.BirthDate)
		fmt.Fprintf(w, "  Address:    %s\n", d.Address)
	}

	fmt.Fprintln(w, "\nAllergies & Intolerances")
	if len(sum.Allergies) == 0 {
		fmt.Fprintf(w, "  %s\n", summary.NoAllergyMessage)
	} else {
		tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  ALLERGY\tREACTION\tSEVERITY\tSTATUS")
		for _, a := range sum.Allergies {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", a.Allergy, a.Reaction, a.Severity, a.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "\nMedications")
	if len(sum.Medications) == 0 {
		fmt.Fprintf(w, "  %s\n", summary.NoMedicationMessage)
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  MEDICATION\tDOSAGE\tFREQUENCY\tSTATUS")
	for _, m := range sum.Medications {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", m.Medication, strings.TrimSpace(m.Dosage), m.Frequency, m.Status)
	}
	return tw.Flush()
}
