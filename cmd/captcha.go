package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/service"
)

// solverProvider returns the configured solver, or nil when there is none.
type solverProvider func(cfg config.CaptchaConfig, logger *zap.Logger) (schemas.CaptchaSolver, error)

func defaultSolverProvider(cfg config.CaptchaConfig, logger *zap.Logger) (schemas.CaptchaSolver, error) {
	solver, err := service.InitializeCaptchaSolver(cfg, logger)
	if err != nil || solver == nil {
		return nil, err
	}
	return solver, nil
}

func newCaptchaCmd(provider solverProvider) *cobra.Command {
	captchaCmd := &cobra.Command{
		Use:   "captcha",
		Short: "Inspect the CAPTCHA solving service",
	}

	captchaCmd.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Print the remaining balance of the solving account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			solver, err := provider(cfg.Captcha(), observability.GetLogger())
			if err != nil {
				return err
			}
			if solver == nil {
				return fmt.Errorf("no CAPTCHA solver configured (hint: set captcha.provider and AUTOAPPLY_CAPTCHA_API_KEY)")
			}

			balance, err := solver.Balance(cmd.Context())
			if err != nil {
				return fmt.Errorf("could not query balance: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %.4f\n", cfg.Captcha().Provider, balance)
			return err
		},
	})
	return captchaCmd
}
