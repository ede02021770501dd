package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/profile"
	"github.com/xkilldash9x/autoapply-cli/internal/service"
)

// applyOptions are the flag overrides for one run.
type applyOptions struct {
	jobURL      string
	profilePath string
	resumePath  string
	headless    bool
	noSemantic  bool
}

func newApplyCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &applyOptions{}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Fill in and submit the application form at a job URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := applyFlagOverrides(cmd, cfg, opts); err != nil {
				return err
			}
			return runApply(cmd, cfg, factory, opts.jobURL)
		},
	}

	applyCmd.Flags().StringVarP(&opts.jobURL, "job-url", "u", "", "URL of the job posting (required)")
	applyCmd.Flags().StringVarP(&opts.profilePath, "profile", "p", "", "applicant profile, JSON or YAML (overrides applicant.profile_path)")
	applyCmd.Flags().StringVarP(&opts.resumePath, "resume", "r", "", "resume file to upload (overrides the profile's resume_path)")
	applyCmd.Flags().BoolVar(&opts.headless, "headless", false, "run the browser without a window (overrides browser.headless)")
	applyCmd.Flags().BoolVar(&opts.noSemantic, "no-semantic", false, "skip the LLM mapping tier")
	_ = applyCmd.MarkFlagRequired("job-url")

	return applyCmd
}

// applyFlagOverrides copies explicitly set flags into cfg and validates the URL.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface, opts *applyOptions) error {
	u, err := url.Parse(strings.TrimSpace(opts.jobURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --job-url %q: an absolute http(s) URL is required", opts.jobURL)
	}
	opts.jobURL = u.String()

	flags := cmd.Flags()
	if flags.Changed("profile") {
		cfg.SetApplicantProfilePath(opts.profilePath)
	}
	if flags.Changed("resume") {
		cfg.SetApplicantResumePath(opts.resumePath)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if opts.noSemantic {
		cfg.SetMappingSemanticEnabled(false)
	}
	return nil
}

func runApply(cmd *cobra.Command, cfg config.Interface, factory service.ComponentFactory, jobURL string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	p, err := profile.Load(cfg.Applicant().ProfilePath)
	if err != nil {
		return fmt.Errorf("failed to load applicant profile: %w", err)
	}
	if rp := cfg.Applicant().ResumePath; cmd.Flags().Changed("resume") && rp != "" {
		p = p.With("resume_path", rp)
	}
	for _, problem := range p.Problems() {
		logger.Warn("Profile gap.", zap.String("problem", problem))
	}

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		if err := components.Shutdown(); err != nil {
			logger.Warn("Shutdown reported errors.", zap.Error(err))
		}
	}()

	attempt, applyErr := components.Orchestrator.Apply(ctx, jobURL, p)
	if attempt != nil {
		printAttempt(cmd.OutOrStdout(), attempt)
	}
	if applyErr != nil {
		if errors.Is(applyErr, context.Canceled) {
			return applyErr
		}
		return fmt.Errorf("application failed: %w", applyErr)
	}
	if attempt.Result == schemas.ResultFailed {
		return fmt.Errorf("application not submitted: %s", attempt.FailureReason)
	}
	return nil
}

// printAttempt writes the human summary of an attempt.
func printAttempt(w io.Writer, a *schemas.ApplicationAttempt) {
	fmt.Fprintf(w, "\nResult:   %s\n", a.Result)
	if a.FailureReason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", a.FailureReason)
	}
	fmt.Fprintf(w, "Attempt:  %d (%s)\n", a.Number, a.ID)
	fmt.Fprintf(w, "Fields:   %d filled, %d required", len(a.Filled), len(a.Required))
	if len(a.MissingRequired) > 0 {
		fmt.Fprintf(w, ", missing: %s", strings.Join(a.MissingRequired, ", "))
	}
	fmt.Fprintln(w)
	if seen := a.Stats.CaptchaSolved + a.Stats.CaptchaFailed; seen > 0 {
		fmt.Fprintf(w, "CAPTCHA:  %d solved, %d failed (%.0f%%)\n", a.Stats.CaptchaSolved, a.Stats.CaptchaFailed, a.Stats.SuccessRate()*100)
	}
	for _, loc := range a.Artifacts {
		fmt.Fprintf(w, "Artifact: %s\n", loc)
	}
	if a.Result == schemas.ResultSubmittedUnconfirmed {
		fmt.Fprintln(w, "The form was submitted but no confirmation was seen; check the posting manually.")
	}
}
