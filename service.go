package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// stopService 停止服务
func stopService(ctx context.Context, run commandRunner, serviceName string) error {
	if _, err := run(ctx, "systemctl", "stop", serviceName); err != nil {
		return fmt.Errorf("停止服务 %s 失败: %w", serviceName, err)
	}
	log.Info().Str("service", serviceName).Msg("服务已停止")
	return nil
}

// stopServices 依次停止服务，出错时重新启动已停止的服务
func stopServices(ctx context.Context, run commandRunner, serviceNames []string) error {
	for i, serviceName := range serviceNames {
		if err := stopService(ctx, run, serviceName); err != nil {
			startServices(ctx, run, serviceNames[:i])
			return err
		}
	}
	return nil
}

// startService 启动服务
func startService(ctx context.Context, run commandRunner, serviceName string) error {
	if _, err := run(ctx, "systemctl", "start", serviceName); err != nil {
		return fmt.Errorf("启动服务 %s 失败: %w", serviceName, err)
	}
	log.Info().Str("service", serviceName).Msg("服务已启动")
	return nil
}

// startServices 按停止的相反顺序启动，单个失败不影响其余服务
func startServices(ctx context.Context, run commandRunner, serviceNames []string) error {
	var firstErr error
	for i := len(serviceNames) - 1; i >= 0; i-- {
		if err := startService(ctx, run, serviceNames[i]); err != nil {
			log.Warn().Err(err).Msg("启动服务失败")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
