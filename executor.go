package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// executor 运行一条管道并返回结果
type executor interface {
	Run(ctx context.Context, p *Pipeline, total int64) error
}

// processExecutor 直接启动各阶段进程，用系统管道串联，不经过shell
type processExecutor struct {
	verbose bool
	quiet   bool
	stderr  io.Writer
}

func newProcessExecutor(verbose, quiet bool) *processExecutor {
	return &processExecutor{verbose: verbose, quiet: quiet, stderr: os.Stderr}
}

// Run 启动全部阶段并等待结束。第一段连接经过进程内拷贝以统计进度，
// 其余连接直接使用系统管道。total 为第一阶段预计输出的字节数，未知时传 -1
func (e *processExecutor) Run(ctx context.Context, p *Pipeline, total int64) error {
	if len(p.Stages) == 0 {
		return errors.New("管道为空")
	}

	cmds := make([]*exec.Cmd, len(p.Stages))
	stderrs := make([]*bytes.Buffer, len(p.Stages))
	for i, st := range p.Stages {
		cmd := exec.CommandContext(ctx, st.Path, st.Args...)
		if len(st.Env) > 0 {
			cmd.Env = append(os.Environ(), st.Env...)
		}
		stderrs[i] = &bytes.Buffer{}
		if e.verbose {
			cmd.Stderr = io.MultiWriter(stderrs[i], e.stderr)
		} else {
			cmd.Stderr = stderrs[i]
		}
		cmds[i] = cmd
	}

	// childEnds 启动子进程后父进程需要关闭的文件
	var childEnds []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			f.Close()
		}
	}

	var copySrc, copyDst *os.File
	for i := 0; i < len(cmds)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(childEnds)
			closeAll([]*os.File{copySrc, copyDst})
			return fmt.Errorf("创建管道失败: %w", err)
		}
		if i > 0 {
			cmds[i].Stdout = w
			cmds[i+1].Stdin = r
			childEnds = append(childEnds, r, w)
			continue
		}
		r2, w2, err := os.Pipe()
		if err != nil {
			closeAll(append(childEnds, r, w))
			return fmt.Errorf("创建管道失败: %w", err)
		}
		cmds[0].Stdout = w
		cmds[1].Stdin = r2
		childEnds = append(childEnds, w, r2)
		copySrc, copyDst = r, w2
	}

	if p.Output != "" {
		f, err := os.OpenFile(p.Output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			closeAll(childEnds)
			if copySrc != nil {
				closeAll([]*os.File{copySrc, copyDst})
			}
			return fmt.Errorf("创建输出文件失败 (%s): %w", p.Output, err)
		}
		cmds[len(cmds)-1].Stdout = f
		childEnds = append(childEnds, f)
	}

	for i, cmd := range cmds {
		log.Debug().Str("stage", p.Stages[i].Name).Strs("args", p.Stages[i].Args).Msg("启动阶段")
		if err := cmd.Start(); err != nil {
			for _, started := range cmds[:i] {
				started.Process.Kill()
				started.Wait()
			}
			closeAll(childEnds)
			if copySrc != nil {
				closeAll([]*os.File{copySrc, copyDst})
			}
			return &PipelineError{Stage: p.Stages[i].Name, ExitCode: -1, Hint: p.Hint, Err: err}
		}
	}
	closeAll(childEnds)

	var g errgroup.Group
	if copySrc != nil {
		bar := newProgressBar(total, e.quiet, p.Stages[0].Name)
		g.Go(func() error {
			defer copySrc.Close()
			defer bar.Finish()
			_, err := io.Copy(io.MultiWriter(copyDst, bar), copySrc)
			copyDst.Close()
			if err != nil {
				return fmt.Errorf("%w: 数据传输中断: %v", ErrPipelineExecutionFailed, err)
			}
			return nil
		})
	}

	// 各阶段的退出状态要全部收集，之后按阶段顺序挑选报告哪一个
	waitErrs := make([]error, len(cmds))
	for i, cmd := range cmds {
		g.Go(func() error {
			waitErrs[i] = cmd.Wait()
			return nil
		})
	}
	copyErr := g.Wait()

	// 下游失败时拷贝通常也会中断，此时报告出错的阶段
	if err := firstStageError(p, waitErrs, stderrs); err != nil {
		return err
	}
	return copyErr
}

// firstStageError 优先报告真正出错的阶段，因下游退出而收到SIGPIPE的上游只作为兜底
func firstStageError(p *Pipeline, waitErrs []error, stderrs []*bytes.Buffer) error {
	var fallback *PipelineError
	for i, err := range waitErrs {
		if err == nil {
			log.Debug().Str("stage", p.Stages[i].Name).Int("exit_code", 0).Msg("阶段完成")
			continue
		}
		pe := &PipelineError{
			Stage:    p.Stages[i].Name,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderrs[i].String()),
			Hint:     p.Hint,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			pe.ExitCode = exitErr.ExitCode()
		} else {
			pe.Err = err
		}
		log.Warn().Str("stage", pe.Stage).Int("exit_code", pe.ExitCode).Str("stderr", pe.Stderr).Msg("阶段失败")

		if brokenPipe(err) {
			if fallback == nil {
				fallback = pe
			}
			continue
		}
		return pe
	}
	if fallback != nil {
		return fallback
	}
	return nil
}

func brokenPipe(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGPIPE
}
