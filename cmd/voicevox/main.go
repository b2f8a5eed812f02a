package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iabetor/vvcore/internal/config"
	"github.com/iabetor/vvcore/internal/logger"
)

var version = "dev"

// app 保存根命令解析出的全局状态。
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	logger.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "voicevox",
		Short:         "VOICEVOX 本地语音合成引擎的命令行与 HTTP 服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags().Changed("config"))
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/vvcore.yaml", "配置文件路径")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "覆盖配置中的日志级别")

	cmd.AddCommand(
		a.newVersionCommand(),
		a.newMetasCommand(),
		a.newDevicesCommand(),
		a.newQueryCommand(),
		a.newSynthCommand(),
		a.newTTSCommand(),
		a.newSayCommand(),
		a.newServeCommand(),
		a.newCacheCommand(),
	)
	return cmd
}

// load 读取配置并初始化日志。未显式指定且默认文件不存在时使用默认配置。
func (a *app) load(explicit bool) error {
	cfg, err := config.Load(a.configPath)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	a.cfg = cfg
	return nil
}
