package main

import (
	"fmt"
	"log/slog"
	"os"

	"runquest/internal/config"
	"runquest/internal/observability"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "runquest",
		Short:         "限时挑战闯关服务",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "配置文件路径")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newResetDBCmd())
	return cmd
}

// loadConfig 加载配置并设置默认 logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(observability.NewLogger(cfg.Log, os.Stderr))
	return cfg, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "错误:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
