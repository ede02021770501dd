package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/service"
)

const envPrefix = "AUTOAPPLY"

// commandDeps are the seams between the commands and the services they open.
type commandDeps struct {
	factory service.ComponentFactory
	solvers solverProvider
	stores  storeProvider
}

// NewRootCommand builds a fresh command tree. Flags and config state live on
// the returned command, so separate trees never share values.
func NewRootCommand() *cobra.Command {
	return newRootCommand(commandDeps{
		factory: service.NewComponentFactory(),
		solvers: defaultSolverProvider,
		stores:  defaultStoreProvider,
	})
}

func newRootCommand(deps commandDeps) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "autoapply",
		Short:         "autoapply fills in and submits job applications in a real browser.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "autoapply"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting autoapply", zap.String("version", Version))

			cmd.SetContext(config.NewContext(cmd.Context(), cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newApplyCmd(deps.factory),
		newCaptchaCmd(deps.solvers),
		newHistoryCmd(deps.stores),
		newProfileCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx, which carries the caller's signal
// handling. Errors are logged here; callers only pick the exit code.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted by signal.")
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
	}
	return err
}

// initializeConfig points v at the config file and the environment. A
// missing default config file is not an error; an explicit one must exist.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) (config.Interface, error) {
	cfg, ok := config.FromContext(cmd.Context())
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
