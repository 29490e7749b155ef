package main

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled 用户主动取消，进程以 0 退出
	ErrCancelled = errors.New("操作已被用户取消")

	ErrNotRoot      = errors.New("请以root权限运行")
	ErrToolNotFound = errors.New("未找到所需的系统工具")

	ErrNoDevices         = errors.New("未找到存储设备")
	ErrNoPartitions      = errors.New("未找到分区")
	ErrPathNotFound      = errors.New("路径不存在")
	ErrPasswordMismatch  = errors.New("两次输入的密码不一致")
	ErrInvalidSizeFormat = errors.New("无效的大小格式")

	ErrPipelineExecutionFailed = errors.New("管道执行失败")

	// ErrInsufficientSpace 仅作提示，不阻止操作继续
	ErrInsufficientSpace = errors.New("可用空间可能不足")
)

// wrongPasswordHint 解密失败时附带的提示，底层工具无法区分密码错误和文件损坏
const wrongPasswordHint = "可能是密码错误或文件损坏 (possibly wrong password or corrupted file)"

// PipelineError 描述管道中某个阶段的非零退出
type PipelineError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Hint     string
	Err      error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%v: %s 退出码 %d", ErrPipelineExecutionFailed, e.Stage, e.ExitCode)
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	if e.Hint != "" {
		msg += ", " + e.Hint
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return ErrPipelineExecutionFailed
}

// exitCode 将错误映射为进程退出码：取消视为成功
func exitCode(err error) int {
	if err == nil || errors.Is(err, ErrCancelled) {
		return 0
	}
	return 1
}
