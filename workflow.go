package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// workflow 交互式备份和还原流程，依赖全部通过字段注入
type workflow struct {
	cfg       *Config
	prompt    prompter
	inv       deviceInventory
	exec      executor
	hooks     *hooks
	freeSpace func(dir string) (int64, error)
	exists    func(path string) bool
	mkdirAll  func(path string, perm os.FileMode) error
	out       io.Writer
	version   string
}

type backupOptions struct {
	Source string
	Output string
	DryRun bool
	Yes    bool
}

type restoreOptions struct {
	Input  string
	Target string
	DryRun bool
	Yes    bool
}

// newWorkflow 根据命令行参数和终端环境组装流程
func newWorkflow(cmd *cobra.Command) *workflow {
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	verbose, _ := cmd.Flags().GetBool("verbose")

	var p prompter
	if noTUI || !term.IsTerminal(int(os.Stdin.Fd())) {
		p = newLinePrompter(os.Stdin, cmd.OutOrStdout())
	} else {
		p = newTUIPrompter("Hardclone " + version())
	}

	return &workflow{
		cfg:       appConfig,
		prompt:    p,
		inv:       newSystemInventory(),
		exec:      newProcessExecutor(verbose, !term.IsTerminal(int(os.Stderr.Fd()))),
		hooks:     newHooks(appConfig, runCommand),
		freeSpace: freeSpace,
		exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		mkdirAll: os.MkdirAll,
		out:      cmd.OutOrStdout(),
		version:  version(),
	}
}

// fail 向用户显示错误后原样返回
func (w *workflow) fail(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if msgErr := w.prompt.Message("错误: " + err.Error()); msgErr != nil {
		log.Debug().Err(msgErr).Msg("显示错误信息失败")
	}
	return err
}

// warn 显示不阻止操作的提示
func (w *workflow) warn(err error) error {
	log.Warn().Err(err).Msg("警告")
	return w.prompt.Message("警告: " + err.Error())
}

func (w *workflow) selectDevice(ctx context.Context) (string, error) {
	devices, err := w.inv.Devices(ctx)
	if err != nil {
		return "", err
	}
	items := make([]MenuItem, len(devices))
	for i, d := range devices {
		items[i] = MenuItem{Tag: d.Name, Label: d.Label}
	}
	tag, err := w.prompt.Menu("选择存储设备:", items)
	if err != nil {
		return "", err
	}
	return devPath(tag), nil
}

func (w *workflow) selectPartition(ctx context.Context, device string) (string, error) {
	partitions, err := w.inv.Partitions(ctx, device)
	if err != nil {
		return "", err
	}
	items := make([]MenuItem, len(partitions))
	for i, d := range partitions {
		items[i] = MenuItem{Tag: d.Name, Label: d.Label}
	}
	tag, err := w.prompt.Menu(fmt.Sprintf("选择 %s 上的分区:", device), items)
	if err != nil {
		return "", err
	}
	partition := devPath(tag)
	if !w.exists(partition) {
		return "", fmt.Errorf("%w: 分区 %s", ErrPathNotFound, partition)
	}
	return partition, nil
}

// choosePartition 参数指定时直接使用，否则依次选择设备和分区
func (w *workflow) choosePartition(ctx context.Context, preset string) (string, error) {
	if preset != "" {
		partition := devPath(preset)
		if !w.exists(partition) {
			return "", fmt.Errorf("%w: 分区 %s", ErrPathNotFound, partition)
		}
		return partition, nil
	}
	device, err := w.selectDevice(ctx)
	if err != nil {
		return "", err
	}
	return w.selectPartition(ctx, device)
}

// askPassword 加密时输入两次，空密码视为取消
func (w *workflow) askPassword(confirm bool) (string, error) {
	pw1, err := w.prompt.Password("输入密码:")
	if err != nil {
		return "", err
	}
	if pw1 == "" {
		return "", ErrCancelled
	}
	if !confirm {
		return pw1, nil
	}
	pw2, err := w.prompt.Password("再次输入密码:")
	if err != nil {
		return "", err
	}
	if pw1 != pw2 {
		return "", ErrPasswordMismatch
	}
	return pw1, nil
}

// runBackup 选择分区 -> 输出路径 -> 加密 -> 压缩 -> 分卷 -> 确认 -> 执行
func (w *workflow) runBackup(ctx context.Context, opts backupOptions) error {
	if err := w.prompt.Message(fmt.Sprintf("欢迎使用 Hardclone %s - 分区备份工具!", w.version)); err != nil {
		return err
	}

	partition, err := w.choosePartition(ctx, opts.Source)
	if err != nil {
		return w.fail(err)
	}

	outputPath := opts.Output
	if outputPath == "" {
		def := filepath.Join(w.cfg.DefaultOutputDir, "backup_"+filepath.Base(partition)+".img")
		if outputPath, err = w.prompt.Input("输入分区镜像的保存路径:", def); err != nil {
			return err
		}
		if outputPath = strings.TrimSpace(outputPath); outputPath == "" {
			return ErrCancelled
		}
	}

	partitionSize, err := w.inv.Size(ctx, partition)
	if err != nil {
		log.Debug().Err(err).Str("partition", partition).Msg("无法获取分区大小")
		partitionSize = -1
	}

	if !opts.DryRun {
		outputDir := filepath.Dir(outputPath)
		if err := w.mkdirAll(outputDir, 0755); err != nil {
			return w.fail(fmt.Errorf("创建目录失败 (%s): %w", outputDir, err))
		}
		if available, err := w.freeSpace(outputDir); err != nil {
			log.Debug().Err(err).Msg("无法获取可用空间")
		} else if partitionSize > 0 {
			if err := checkSpace(partitionSize, available, "分区大小"); err != nil {
				if err := w.warn(err); err != nil {
					return err
				}
			}
		}
	}

	spec := BackupSpec{SourcePartitionPath: partition, OutputPath: outputPath}

	if spec.Encrypt, err = w.prompt.YesNo("是否加密镜像文件?"); err != nil {
		return err
	}
	if spec.Encrypt {
		if spec.Password, err = w.askPassword(true); err != nil {
			return w.fail(err)
		}
	}

	if spec.Compress, err = w.prompt.YesNo("是否压缩镜像文件?"); err != nil {
		return err
	}

	split, err := w.prompt.YesNo("是否将文件分卷?")
	if err != nil {
		return err
	}
	if split {
		size, err := w.prompt.Input("每个分卷的最大大小 (例如 1G, 500M, 2048K):", w.cfg.DefaultSplitSize)
		if err != nil {
			return err
		}
		size = strings.ToUpper(strings.TrimSpace(size))
		if err := validateByteSize(size); err != nil {
			return w.fail(err)
		}
		spec.SplitSize = size
	}

	p, err := buildBackupPipeline(w.cfg, spec)
	if err != nil {
		return w.fail(err)
	}

	if !opts.Yes {
		ok, err := w.prompt.YesNo(backupSummary(spec, p))
		if err != nil {
			return err
		}
		if !ok {
			w.prompt.Message("操作已被用户取消。")
			return ErrCancelled
		}
	}

	if opts.DryRun {
		fmt.Fprintln(w.out, p.String())
		return nil
	}

	if err := w.execute(ctx, p, partitionSize, "开始创建分区镜像...\n这可能需要较长时间。"); err != nil {
		return w.fail(fmt.Errorf("创建分区镜像失败: %w", err))
	}
	return w.prompt.Message(backupSuccess(spec, p, w.cfg.Cipher))
}

// runRestore 选择镜像 -> 确认属性 -> 密码 -> 目标分区 -> 确认 -> 执行
func (w *workflow) runRestore(ctx context.Context, opts restoreOptions) error {
	if err := w.prompt.Message(fmt.Sprintf("欢迎使用 Hardclone %s - 分区还原工具!", w.version)); err != nil {
		return err
	}

	inputPath := opts.Input
	if inputPath == "" {
		var err error
		def := filepath.Join(w.cfg.DefaultOutputDir, "backup.img")
		if inputPath, err = w.prompt.Input("输入备份镜像的路径:", def); err != nil {
			return err
		}
		if inputPath = strings.TrimSpace(inputPath); inputPath == "" {
			return ErrCancelled
		}
	}

	props, err := inspectArtifact(inputPath)
	if err != nil {
		return w.fail(err)
	}
	log.Debug().
		Bool("encrypted", props.IsEncrypted).
		Bool("compressed", props.IsCompressed).
		Bool("split", props.IsSplit).
		Strs("parts", props.SplitParts).
		Msg("镜像属性")

	spec := RestoreSpec{
		InputPath:    inputPath,
		IsEncrypted:  props.IsEncrypted,
		IsCompressed: props.IsCompressed,
		IsSplit:      props.IsSplit,
	}
	if !opts.Yes {
		for _, q := range []struct {
			question string
			flag     *bool
		}{
			{"镜像文件已加密", &spec.IsEncrypted},
			{"镜像文件已压缩 (gzip)", &spec.IsCompressed},
			{"镜像文件已分卷", &spec.IsSplit},
		} {
			answer, err := w.prompt.YesNo(fmt.Sprintf("%s? (检测结果: %s)", q.question, yesNo(*q.flag)))
			if err != nil {
				return err
			}
			*q.flag = answer
		}
	}

	if spec.IsEncrypted {
		if spec.Password, err = w.askPassword(false); err != nil {
			return w.fail(err)
		}
	}

	if spec.DestinationPartitionPath, err = w.choosePartition(ctx, opts.Target); err != nil {
		return w.fail(err)
	}

	imageSize, err := artifactSize(inputPath, props)
	if err != nil {
		imageSize = -1
	}
	if !spec.IsCompressed && !spec.IsEncrypted && imageSize > 0 {
		if destSize, err := w.inv.Size(ctx, spec.DestinationPartitionPath); err == nil {
			if err := checkSpace(imageSize, destSize, "镜像大小"); err != nil {
				if err := w.warn(err); err != nil {
					return err
				}
			}
		}
	}

	p, err := buildRestorePipeline(w.cfg, spec, props.SplitParts)
	if err != nil {
		return w.fail(err)
	}

	if !opts.Yes {
		ok, err := w.prompt.YesNo(restoreSummary(spec, p))
		if err != nil {
			return err
		}
		if !ok {
			w.prompt.Message("操作已被用户取消。")
			return ErrCancelled
		}
	}

	if opts.DryRun {
		fmt.Fprintln(w.out, p.String())
		return nil
	}

	// 第一段连接传输的是解压前的数据
	total := imageSize
	if spec.IsCompressed && !spec.IsSplit && !spec.IsEncrypted {
		total = -1
	}
	if err := w.execute(ctx, p, total, "开始还原分区...\n这可能需要较长时间。"); err != nil {
		return w.fail(fmt.Errorf("还原分区失败: %w", err))
	}
	return w.prompt.Message(fmt.Sprintf("分区还原成功!\n目标分区: %s", spec.DestinationPartitionPath))
}

// execute 在前后钩子之间运行管道，后置钩子总会执行
func (w *workflow) execute(ctx context.Context, p *Pipeline, total int64, notice string) error {
	if err := w.hooks.Before(ctx); err != nil {
		return err
	}
	w.prompt.Info(notice)
	log.Info().Str("pipeline", p.String()).Msg("执行管道")

	runErr := w.exec.Run(ctx, p, total)
	afterErr := w.hooks.After(ctx)
	if runErr != nil {
		if afterErr != nil {
			log.Warn().Err(afterErr).Msg("后置操作失败")
		}
		return runErr
	}
	return afterErr
}

func backupSummary(spec BackupSpec, p *Pipeline) string {
	split := "否"
	if spec.SplitSize != "" {
		split = "是 (" + spec.SplitSize + ")"
	}
	return fmt.Sprintf(`操作摘要:

分区: %s
输出文件: %s
加密: %s
压缩: %s
分卷: %s

继续执行?`, spec.SourcePartitionPath, p.Target, yesNo(spec.Encrypt), yesNo(spec.Compress), split)
}

func backupSuccess(spec BackupSpec, p *Pipeline, cipher string) string {
	var b strings.Builder
	if spec.SplitSize != "" {
		fmt.Fprintf(&b, "分区镜像创建成功!\n位置: %s.*", p.Target)
		fmt.Fprintf(&b, "\n文件已分卷，每卷大小 %s，还原时输入 %s", spec.SplitSize, p.Target)
	} else {
		fmt.Fprintf(&b, "分区镜像创建成功!\n位置: %s", p.Target)
	}
	if spec.Compress {
		b.WriteString("\n文件已压缩 (gzip)")
	}
	if spec.Encrypt {
		fmt.Fprintf(&b, "\n文件已加密 (%s)", strings.ToUpper(cipher))
	}
	return b.String()
}

func restoreSummary(spec RestoreSpec, p *Pipeline) string {
	return fmt.Sprintf(`操作摘要:

镜像文件: %s
目标分区: %s
加密: %s
压缩: %s
分卷: %s

警告: 目标分区上的所有数据将被覆盖!
继续执行?`, spec.InputPath, p.Target, yesNo(spec.IsEncrypted), yesNo(spec.IsCompressed), yesNo(spec.IsSplit))
}
