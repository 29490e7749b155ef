package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// commandRunner 执行外部命令并返回标准输出，测试中可替换
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func checkRoot(cmd *cobra.Command, args []string) error {
	if os.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}

// checkTools 确认管道所需的工具都在PATH中
func checkTools(cfg *Config) error {
	for _, bin := range []string{cfg.Tools.DD, cfg.Tools.Gzip, cfg.Tools.OpenSSL, cfg.Tools.Split, cfg.Tools.Cat} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s", ErrToolNotFound, bin)
		}
	}
	return nil
}

// runCommand 执行系统命令并返回标准输出
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("命令执行失败 (%s %v): %w, 输出: %s",
				name, args, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("命令执行失败 (%s %v): %w", name, args, err)
	}
	return string(output), nil
}

func newProgressBar(total int64, quiet bool, description string) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1
	}
	if quiet {
		return progressbar.DefaultBytesSilent(total, description)
	}
	return progressbar.DefaultBytes(total, description)
}

var byteSizePattern = regexp.MustCompile(`^[0-9]+[KMG]$`)

// validateByteSize 校验 1G、500M、2048K 这类大小字符串
func validateByteSize(size string) error {
	if size == "" || size[0] < '0' || size[0] > '9' {
		return fmt.Errorf("%w: %q", ErrInvalidSizeFormat, size)
	}
	if !byteSizePattern.MatchString(size) {
		return fmt.Errorf("%w: %q (需要 <数字><K|M|G>)", ErrInvalidSizeFormat, size)
	}
	return nil
}

// formatSize 将字节数格式化为可读的大小
func formatSize(size int64) string {
	switch {
	case size < 0:
		return "未知大小"
	case size >= 1<<40:
		return fmt.Sprintf("%.1f TB", float64(size)/float64(1<<40))
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%d MB", size/(1<<20))
	default:
		return fmt.Sprintf("%d KB", size/(1<<10))
	}
}
