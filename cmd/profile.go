package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autoapply-cli/internal/profile"
)

func newProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Work with the applicant profile",
	}

	profileCmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Check that a profile loads and carries the common fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			path := cfg.Applicant().ProfilePath
			if len(args) == 1 {
				path = args[0]
			}

			p, err := profile.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := p.Problems()
			if len(problems) == 0 {
				fmt.Fprintf(out, "%s: OK (%d top-level keys)\n", p.Path(), len(p.Keys()))
				return nil
			}
			fmt.Fprintf(out, "%s:\n", p.Path())
			for _, problem := range problems {
				fmt.Fprintf(out, "  - %s\n", problem)
			}
			return fmt.Errorf("profile has %d problem(s)", len(problems))
		},
	})
	return profileCmd
}
