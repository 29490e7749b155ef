package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
)

// headerSniffSize 识别文件类型时读取的字节数
const headerSniffSize = 16

var (
	gzipMagic    = []byte{0x1f, 0x8b}
	opensslMagic = []byte("Salted__")
)

// ArtifactProperties 备份文件的属性，每次检查时重新计算
type ArtifactProperties struct {
	IsEncrypted  bool
	IsCompressed bool
	IsSplit      bool
	SplitParts   []string
}

// inspectArtifact 判断备份文件是否被分卷、压缩、加密。
// 分卷时只嗅探字典序第一个分卷的文件头，分卷本身不带合并后文件的后缀
func inspectArtifact(path string) (ArtifactProperties, error) {
	var props ArtifactProperties

	parts, err := findSplitParts(path)
	if err != nil {
		return props, err
	}
	if len(parts) == 0 {
		if parts, err = loneSplitPart(path); err != nil {
			return props, err
		}
	}
	if len(parts) > 0 {
		props.IsSplit = true
		props.SplitParts = parts
	} else if err := requireFile(path); err != nil {
		return props, err
	}

	switch {
	case strings.HasSuffix(path, ".gz.enc"):
		props.IsCompressed, props.IsEncrypted = true, true
	case strings.HasSuffix(path, ".gz"):
		props.IsCompressed = true
	case strings.HasSuffix(path, ".enc"):
		props.IsEncrypted = true
	default:
		sniffed := path
		if props.IsSplit {
			sniffed = parts[0]
		}
		header, err := readHeader(sniffed, headerSniffSize)
		if err != nil {
			return props, err
		}
		props.IsCompressed = bytes.HasPrefix(header, gzipMagic)
		props.IsEncrypted = bytes.HasPrefix(header, opensslMagic)
	}
	return props, nil
}

// findSplitParts 查找 <name>.* 的同级文件，找不到多个时再尝试 <stem>.*
func findSplitParts(path string) ([]string, error) {
	matches, err := globFiles(escapeGlob(path) + ".*")
	if err != nil {
		return nil, err
	}

	if len(matches) < 2 {
		name := filepath.Base(path)
		if ext := filepath.Ext(name); ext != "" && ext != name {
			stem := strings.TrimSuffix(path, ext)
			if matches, err = globFiles(escapeGlob(stem) + ".*"); err != nil {
				return nil, err
			}
		}
	}

	if len(matches) < 2 {
		return nil, nil
	}
	sort.Strings(matches)
	return matches, nil
}

// loneSplitPart 数据小于分卷大小时只有一个 <name>.aa，文件本身不存在
func loneSplitPart(path string) ([]string, error) {
	if _, err := os.Lstat(path); err == nil {
		return nil, nil
	}
	matches, err := globFiles(escapeGlob(path) + ".*")
	if err != nil || len(matches) != 1 {
		return nil, err
	}
	return matches, nil
}

// globFiles 只保留普通文件
func globFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("匹配分卷文件失败 (%s): %w", pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files, nil
}

func escapeGlob(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s 是目录", ErrPathNotFound, path)
	}
	return nil
}

// readHeader 读取文件开头最多 n 个字节
func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败 (%s): %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("读取文件头失败 (%s): %w", path, err)
	}
	return buf[:read], nil
}

// readGzipHeader 读取gzip头中的原始文件名和修改时间
func readGzipHeader(path string) (gzip.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return gzip.Header{}, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return gzip.Header{}, fmt.Errorf("解析gzip头失败 (%s): %w", path, err)
	}
	defer zr.Close()
	return zr.Header, nil
}

// artifactSize 备份文件（或全部分卷）的总字节数
func artifactSize(path string, props ArtifactProperties) (int64, error) {
	files := props.SplitParts
	if !props.IsSplit {
		files = []string{path}
	}
	var total int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "识别备份文件的分卷、压缩、加密属性",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printArtifact(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func printArtifact(w io.Writer, path string) error {
	props, err := inspectArtifact(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "文件: %s\n", path)
	fmt.Fprintf(w, "加密: %s\n", yesNo(props.IsEncrypted))
	fmt.Fprintf(w, "压缩: %s\n", yesNo(props.IsCompressed))
	fmt.Fprintf(w, "分卷: %s\n", yesNo(props.IsSplit))
	for _, part := range props.SplitParts {
		fmt.Fprintf(w, "  %s\n", part)
	}
	if size, err := artifactSize(path, props); err == nil {
		fmt.Fprintf(w, "大小: %s\n", formatSize(size))
	}

	// 加密或分卷时gzip头不在文件开头
	if props.IsCompressed && !props.IsEncrypted && !props.IsSplit {
		if hdr, err := readGzipHeader(path); err == nil {
			name := hdr.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "原始文件名: %s\n", name)
			if !hdr.ModTime.IsZero() {
				fmt.Fprintf(w, "修改时间: %s\n", hdr.ModTime.Format("2006-01-02 15:04:05"))
			}
		}
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}
