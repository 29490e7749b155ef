package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	appConfig = defaultConfig()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "hardclone",
	Short:         "分区备份和还原工具",
	Version:       version(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg

		verbose, _ := cmd.Flags().GetBool("verbose")
		logFile, _ := cmd.Flags().GetString("log-file")
		if logFile == "" {
			logFile = cfg.LogFile
		}
		logCloser, err = setupLogging(verbose, logFile)
		if err != nil {
			return err
		}
		log.Debug().Str("config", configPath).Str("version", version()).Msg("配置已加载")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "配置文件路径")
	rootCmd.PersistentFlags().Bool("no-tui", false, "使用逐行提示代替对话框")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "显示调试日志和工具输出")
	rootCmd.PersistentFlags().String("log-file", "", "日志文件路径")
}

// version 从构建信息中读取版本号
func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		fmt.Fprintln(os.Stderr, err)
	default:
		log.Debug().Err(err).Msg("执行失败")
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	}
	os.Exit(exitCode(err))
}
