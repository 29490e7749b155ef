package main

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// passwordEnv openssl 通过环境变量读取密码，避免出现在进程参数中
const passwordEnv = "HARDCLONE_PASSWORD"

// BackupSpec 一次备份操作的全部参数，提示流程结束后构造，之后不再修改
type BackupSpec struct {
	SourcePartitionPath string
	OutputPath          string
	Encrypt             bool
	Password            string
	Compress            bool
	SplitSize           string // 空表示不分卷
}

func (s BackupSpec) validate() error {
	if s.SourcePartitionPath == "" || s.OutputPath == "" {
		return errors.New("源分区和输出路径不能为空")
	}
	if s.Encrypt != (s.Password != "") {
		return errors.New("仅在加密时需要提供密码")
	}
	if s.SplitSize != "" {
		return validateByteSize(s.SplitSize)
	}
	return nil
}

// RestoreSpec 一次还原操作的全部参数
type RestoreSpec struct {
	InputPath                string
	DestinationPartitionPath string
	IsEncrypted              bool
	IsCompressed             bool
	IsSplit                  bool
	Password                 string
}

func (s RestoreSpec) validate() error {
	if s.InputPath == "" || s.DestinationPartitionPath == "" {
		return errors.New("输入文件和目标分区不能为空")
	}
	if s.IsEncrypted != (s.Password != "") {
		return errors.New("仅在解密时需要提供密码")
	}
	return nil
}

// Stage 管道中的一个进程
type Stage struct {
	Name string
	Path string
	Args []string
	Env  []string
}

// Pipeline 按顺序串联的进程，前一个的标准输出接到后一个的标准输入
type Pipeline struct {
	Stages []Stage
	Output string // 末级标准输出写入的文件，空表示末级自行写入
	Target string // 最终产物：镜像文件（或分卷前缀）或目标分区
	Hint   string // 执行失败时附加的提示
}

// String 渲染为等价的shell命令行，仅用于展示
func (p *Pipeline) String() string {
	parts := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		words := make([]string, 0, len(st.Args)+1)
		words = append(words, shellQuote(st.Path))
		for _, arg := range st.Args {
			words = append(words, shellQuote(arg))
		}
		parts = append(parts, strings.Join(words, " "))
	}
	line := strings.Join(parts, " | ")
	if p.Output != "" {
		line += " > " + shellQuote(p.Output)
	}
	return line
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// backupSuffix 输出文件的后缀，还原时按后缀识别文件属性
func backupSuffix(compress, encrypt bool) string {
	switch {
	case compress && encrypt:
		return ".gz.enc"
	case compress:
		return ".gz"
	case encrypt:
		return ".enc"
	default:
		return ""
	}
}

// buildBackupPipeline 读取分区 -> [gzip] -> [openssl] -> [split 或直接写文件]
func buildBackupPipeline(cfg *Config, spec BackupSpec) (*Pipeline, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	base := spec.OutputPath + backupSuffix(spec.Compress, spec.Encrypt)
	p := &Pipeline{Target: base}

	dd := Stage{
		Name: "dd",
		Path: cfg.Tools.DD,
		Args: []string{"if=" + spec.SourcePartitionPath, "bs=" + cfg.BlockSize},
	}
	if !spec.Compress && !spec.Encrypt && spec.SplitSize == "" {
		dd.Args = append(dd.Args, "of="+base)
		p.Stages = []Stage{dd}
		return p, nil
	}
	p.Stages = append(p.Stages, dd)

	if spec.Compress {
		p.Stages = append(p.Stages, Stage{Name: "gzip", Path: cfg.Tools.Gzip, Args: []string{"-c"}})
	}

	if spec.Encrypt {
		enc := Stage{
			Name: "openssl",
			Path: cfg.Tools.OpenSSL,
			Args: []string{"enc", "-" + cfg.Cipher, "-salt", "-pbkdf2", "-pass", "env:" + passwordEnv},
			Env:  []string{passwordEnv + "=" + spec.Password},
		}
		if spec.SplitSize == "" {
			enc.Args = append(enc.Args, "-out", base)
		}
		p.Stages = append(p.Stages, enc)
	}

	switch {
	case spec.SplitSize != "":
		p.Stages = append(p.Stages, Stage{
			Name: "split",
			Path: cfg.Tools.Split,
			Args: []string{"-b", spec.SplitSize, "-", base + "."},
		})
	case !spec.Encrypt:
		p.Output = base
	}
	return p, nil
}

// buildRestorePipeline [cat 分卷] -> [解密] -> [解压] -> 写入目标分区
// 备份时加密总是最外层，所以还原时必须先解密再解压
func buildRestorePipeline(cfg *Config, spec RestoreSpec, parts []string) (*Pipeline, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if spec.IsSplit && len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s 没有分卷文件", ErrPathNotFound, spec.InputPath)
	}

	p := &Pipeline{Target: spec.DestinationPartitionPath}
	// needInput 表示还没有阶段读取过输入文件
	needInput := true

	if spec.IsSplit {
		sorted := slices.Clone(parts)
		slices.Sort(sorted)
		p.Stages = append(p.Stages, Stage{Name: "cat", Path: cfg.Tools.Cat, Args: sorted})
		needInput = false
	}

	if spec.IsEncrypted {
		dec := Stage{
			Name: "openssl",
			Path: cfg.Tools.OpenSSL,
			Args: []string{"enc", "-d", "-" + cfg.Cipher, "-pbkdf2", "-pass", "env:" + passwordEnv},
			Env:  []string{passwordEnv + "=" + spec.Password},
		}
		if needInput {
			dec.Args = append(dec.Args, "-in", spec.InputPath)
			needInput = false
		}
		p.Stages = append(p.Stages, dec)
		p.Hint = wrongPasswordHint
	}

	if spec.IsCompressed {
		gz := Stage{Name: "gzip", Path: cfg.Tools.Gzip, Args: []string{"-d", "-c"}}
		if needInput {
			gz.Args = append(gz.Args, spec.InputPath)
			needInput = false
		}
		p.Stages = append(p.Stages, gz)
	}

	dd := Stage{Name: "dd", Path: cfg.Tools.DD}
	if needInput {
		dd.Args = append(dd.Args, "if="+spec.InputPath)
	}
	dd.Args = append(dd.Args, "of="+spec.DestinationPartitionPath, "bs="+cfg.BlockSize, "conv=fsync")
	p.Stages = append(p.Stages, dd)
	return p, nil
}
