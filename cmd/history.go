package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/service"
	"github.com/xkilldash9x/autoapply-cli/internal/store"
)

// storeProvider opens the attempt store. The returned func releases it.
type storeProvider func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.AttemptStore, func(), error)

func defaultStoreProvider(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.AttemptStore, func(), error) {
	s, pool, err := service.InitializeStore(ctx, cfg, service.OpenPool, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, pool.Close, nil
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent application attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			attemptStore, release, err := provider(cmd.Context(), cfg.Database(), observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open attempt history: %w", err)
			}
			defer release()

			attempts, err := attemptStore.ListAttempts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd, attempts)
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "number of attempts to show")
	return historyCmd
}

func printHistory(cmd *cobra.Command, attempts []schemas.ApplicationAttempt) error {
	out := cmd.OutOrStdout()
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(out, "No application attempts recorded.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRESULT\tREASON\tFILLED\tJOB")
	for _, a := range attempts {
		reason := string(a.FailureReason)
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			a.StartedAt.Local().Format("2006-01-02 15:04"),
			a.Result,
			reason,
			len(a.Filled), len(a.Outcomes),
			strings.TrimSpace(a.JobURL))
	}
	return tw.Flush()
}
