package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "执行配置中的前置或后置脚本",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		scriptType, _ := cmd.Flags().GetString("type")
		if scriptType != "before" && scriptType != "after" {
			return fmt.Errorf("type 必须是 'before' 或 'after'")
		}
		return checkRoot(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		scriptType, _ := cmd.Flags().GetString("type")

		scriptContent := appConfig.BeforeScript
		if scriptType == "after" {
			scriptContent = appConfig.AfterScript
		}
		if scriptContent == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "未配置 %s 脚本\n", scriptType)
			return nil
		}

		output, err := runScript(cmd.Context(), runCommand, scriptContent, scriptType)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	scriptCmd.Flags().StringP("type", "t", "before", "脚本类型 (before|after)")

	rootCmd.AddCommand(scriptCmd)
}

// runScript 用 sh -c 执行脚本
func runScript(ctx context.Context, run commandRunner, scriptContent, scriptType string) (string, error) {
	result, err := run(ctx, "sh", "-c", scriptContent)
	if err != nil {
		return "", fmt.Errorf("执行 %s 脚本失败: %w", scriptType, err)
	}

	log.Debug().Str("script", scriptType).Str("output", strings.TrimSpace(result)).Msg("脚本执行完成")
	return result, nil
}

// hooks 管道前后需要执行的操作：停止服务、前置脚本，以及对应的后置脚本、启动服务
type hooks struct {
	run          commandRunner
	serviceNames []string
	beforeScript string
	afterScript  string
}

func newHooks(cfg *Config, run commandRunner) *hooks {
	return &hooks{
		run:          run,
		serviceNames: cfg.ServiceNames,
		beforeScript: cfg.BeforeScript,
		afterScript:  cfg.AfterScript,
	}
}

// Before 失败时已停止的服务会被重新启动
func (h *hooks) Before(ctx context.Context) error {
	if err := stopServices(ctx, h.run, h.serviceNames); err != nil {
		return err
	}
	if h.beforeScript == "" {
		return nil
	}
	if _, err := runScript(ctx, h.run, h.beforeScript, "before"); err != nil {
		startServices(ctx, h.run, h.serviceNames)
		return err
	}
	return nil
}

// After 无论后置脚本是否成功都会启动服务
func (h *hooks) After(ctx context.Context) error {
	var scriptErr error
	if h.afterScript != "" {
		_, scriptErr = runScript(ctx, h.run, h.afterScript, "after")
	}
	if err := startServices(ctx, h.run, h.serviceNames); err != nil {
		return err
	}
	return scriptErr
}
