package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/hardclone/config.yaml"

// Tools 外部工具的可执行文件，可以是名称或绝对路径
type Tools struct {
	DD      string `yaml:"dd"`
	Gzip    string `yaml:"gzip"`
	OpenSSL string `yaml:"openssl"`
	Split   string `yaml:"split"`
	Cat     string `yaml:"cat"`
}

type Config struct {
	BlockSize        string   `yaml:"block_size"`
	Cipher           string   `yaml:"cipher"`
	DefaultSplitSize string   `yaml:"default_split_size"`
	DefaultOutputDir string   `yaml:"default_output_dir"`
	Tools            Tools    `yaml:"tools"`
	ServiceNames     []string `yaml:"service_names,omitempty"`
	BeforeScript     string   `yaml:"before_script,omitempty"`
	AfterScript      string   `yaml:"after_script,omitempty"`
	LogFile          string   `yaml:"log_file,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		BlockSize:        "1M",
		Cipher:           "aes-256-cbc",
		DefaultSplitSize: "1G",
		DefaultOutputDir: "/tmp",
		Tools: Tools{
			DD:      "dd",
			Gzip:    "gzip",
			OpenSSL: "openssl",
			Split:   "split",
			Cat:     "cat",
		},
	}
}

// loadConfig 读取YAML配置，文件不存在时使用默认值
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败 (%s): %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析YAML配置失败 (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效 (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate 检查工具路径和大小格式
func (c *Config) Validate() error {
	tools := map[string]string{
		"dd":      c.Tools.DD,
		"gzip":    c.Tools.Gzip,
		"openssl": c.Tools.OpenSSL,
		"split":   c.Tools.Split,
		"cat":     c.Tools.Cat,
	}
	for name, bin := range tools {
		if bin == "" {
			return fmt.Errorf("tools.%s 不能为空", name)
		}
	}
	if c.Cipher == "" {
		return errors.New("cipher 不能为空")
	}
	if err := validateByteSize(c.BlockSize); err != nil {
		return fmt.Errorf("block_size: %w", err)
	}
	if err := validateByteSize(c.DefaultSplitSize); err != nil {
		return fmt.Errorf("default_split_size: %w", err)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看当前生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(appConfig)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// configExportCmd 导出当前配置到文件
var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出当前生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputPath, _ := cmd.Flags().GetString("output")
		if err := exportConfig(appConfig, outputPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "配置已成功导出到: %s\n", outputPath)
		return nil
	},
}

func init() {
	configExportCmd.Flags().StringP("output", "o", "config.yaml", "导出的配置文件")

	configCmd.AddCommand(configExportCmd)
	rootCmd.AddCommand(configCmd)
}

// exportConfig 将配置写入YAML文件
func exportConfig(cfg *Config, outputPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 (%s): %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败 (%s): %w", outputPath, err)
	}
	return nil
}
