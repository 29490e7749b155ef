package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// BlockDevice 菜单中的一项：设备名和描述
type BlockDevice struct {
	Name  string
	Label string
}

// Path 返回 /dev 下的完整路径
func (d BlockDevice) Path() string {
	return devPath(d.Name)
}

func devPath(name string) string {
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}

// deviceInventory 设备和分区的来源
type deviceInventory interface {
	Devices(ctx context.Context) ([]BlockDevice, error)
	Partitions(ctx context.Context, device string) ([]BlockDevice, error)
	Size(ctx context.Context, path string) (int64, error)
}

// listStrategy 一种枚举方式，按优先级依次尝试
type listStrategy struct {
	name string
	list func(ctx context.Context) ([]BlockDevice, error)
}

// firstNonEmpty 返回第一个非空的枚举结果
func firstNonEmpty(ctx context.Context, strategies []listStrategy) []BlockDevice {
	for _, s := range strategies {
		devices, err := s.list(ctx)
		if err != nil {
			log.Debug().Err(err).Str("strategy", s.name).Msg("枚举失败，尝试下一种方式")
			continue
		}
		if len(devices) > 0 {
			log.Debug().Str("strategy", s.name).Int("count", len(devices)).Msg("枚举完成")
			return devices
		}
	}
	return nil
}

// systemInventory 通过 lsblk、/dev 扫描和 /proc/partitions 枚举设备
type systemInventory struct {
	run      commandRunner
	glob     func(pattern string) ([]string, error)
	readFile func(name string) ([]byte, error)
	exists   func(path string) bool
}

func newSystemInventory() *systemInventory {
	return &systemInventory{
		run:      runCommand,
		glob:     filepath.Glob,
		readFile: os.ReadFile,
		exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

func (inv *systemInventory) Devices(ctx context.Context) ([]BlockDevice, error) {
	devices := firstNonEmpty(ctx, []listStrategy{
		{"lsblk", inv.devicesFromLsblk},
		{"dev-scan", inv.devicesFromDev},
		{"proc-partitions", inv.devicesFromProc},
	})
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return devices, nil
}

func (inv *systemInventory) Partitions(ctx context.Context, device string) ([]BlockDevice, error) {
	device = devPath(device)
	partitions := firstNonEmpty(ctx, []listStrategy{
		{"lsblk", func(ctx context.Context) ([]BlockDevice, error) { return inv.partitionsFromLsblk(ctx, device) }},
		{"dev-scan", func(ctx context.Context) ([]BlockDevice, error) { return inv.partitionsFromDev(ctx, device) }},
		{"proc-partitions", func(ctx context.Context) ([]BlockDevice, error) { return inv.partitionsFromProc(device) }},
	})
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPartitions, device)
	}
	return partitions, nil
}

// Size 优先使用 blockdev，失败时定位到设备末尾
func (inv *systemInventory) Size(ctx context.Context, path string) (int64, error) {
	out, err := inv.run(ctx, "blockdev", "--getsize64", path)
	if err == nil {
		if size, perr := strconv.ParseInt(strings.TrimSpace(out), 10, 64); perr == nil {
			return size, nil
		}
	}
	return seekSize(path)
}

func seekSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Seek(0, io.SeekEnd)
}

// lsblkSize 新版 lsblk -b 输出数字，旧版输出字符串
type lsblkSize int64

func (s *lsblkSize) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "" || str == "null" {
		*s = -1
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return err
	}
	*s = lsblkSize(n)
	return nil
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Size       lsblkSize     `json:"size"`
	Model      string        `json:"model"`
	Type       string        `json:"type"`
	FSType     string        `json:"fstype"`
	Mountpoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

func (inv *systemInventory) devicesFromLsblk(ctx context.Context) ([]BlockDevice, error) {
	out, err := inv.run(ctx, "lsblk", "-J", "-b", "-d", "-o", "NAME,SIZE,MODEL,TYPE")
	if err != nil {
		return nil, err
	}
	return parseLsblkDevices([]byte(out))
}

func parseLsblkDevices(data []byte) ([]BlockDevice, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("解析lsblk输出失败: %w", err)
	}
	var devices []BlockDevice
	for _, d := range parsed.BlockDevices {
		if d.Type != "disk" && d.Type != "" {
			continue
		}
		devices = append(devices, BlockDevice{
			Name:  d.Name,
			Label: formatSize(int64(d.Size)) + " | " + orDefault(strings.TrimSpace(d.Model), "未知型号"),
		})
	}
	return devices, nil
}

func (inv *systemInventory) partitionsFromLsblk(ctx context.Context, device string) ([]BlockDevice, error) {
	out, err := inv.run(ctx, "lsblk", "-J", "-b", "-o", "NAME,SIZE,FSTYPE,MOUNTPOINT,TYPE", device)
	if err != nil {
		return nil, err
	}
	return parseLsblkPartitions([]byte(out), device)
}

// parseLsblkPartitions 展开设备下的所有子节点
func parseLsblkPartitions(data []byte, device string) ([]BlockDevice, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("解析lsblk输出失败: %w", err)
	}
	base := filepath.Base(device)

	var partitions []BlockDevice
	var walk func(nodes []lsblkDevice)
	walk = func(nodes []lsblkDevice) {
		for _, n := range nodes {
			if filepath.Base(n.Name) != base {
				partitions = append(partitions, BlockDevice{
					Name:  filepath.Base(n.Name),
					Label: partitionLabel(int64(n.Size), n.FSType, n.Mountpoint),
				})
			}
			walk(n.Children)
		}
	}
	walk(parsed.BlockDevices)
	return partitions, nil
}

var wholeDiskPattern = regexp.MustCompile(`^(sd[a-z]+|vd[a-z]+|nvme[0-9]+n[0-9]+|mmcblk[0-9]+)$`)

// partitionSuffix 分区名去掉设备名后剩余的部分，sda1 或 nvme0n1p1
var partitionSuffix = regexp.MustCompile(`^p?[0-9]+$`)

// isPartitionOf 排除 sdaa、nvme0n10 这类前缀相同的其他磁盘
func isPartitionOf(base, name string) bool {
	rest, ok := strings.CutPrefix(name, base)
	return ok && partitionSuffix.MatchString(rest)
}

func (inv *systemInventory) devicesFromDev(ctx context.Context) ([]BlockDevice, error) {
	var candidates []string
	for _, pattern := range []string{"/dev/sd[a-z]", "/dev/vd[a-z]", "/dev/nvme*n*", "/dev/mmcblk[0-9]"} {
		matches, err := inv.glob(pattern)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, matches...)
	}
	slices.Sort(candidates)

	var devices []BlockDevice
	for _, dev := range slices.Compact(candidates) {
		if !wholeDiskPattern.MatchString(filepath.Base(dev)) || !inv.exists(dev) {
			continue
		}
		devices = append(devices, BlockDevice{
			Name:  filepath.Base(dev),
			Label: inv.sizeLabel(ctx, dev) + " | 未知型号",
		})
	}
	return devices, nil
}

func (inv *systemInventory) partitionsFromDev(ctx context.Context, device string) ([]BlockDevice, error) {
	base := filepath.Base(device)
	var candidates []string
	for _, pattern := range []string{"/dev/" + escapeGlob(base) + "[0-9]*", "/dev/" + escapeGlob(base) + "p[0-9]*"} {
		matches, err := inv.glob(pattern)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, matches...)
	}
	slices.Sort(candidates)

	var partitions []BlockDevice
	for _, part := range slices.Compact(candidates) {
		if !isPartitionOf(base, filepath.Base(part)) || !inv.exists(part) {
			continue
		}
		fstype, _ := inv.run(ctx, "blkid", "-o", "value", "-s", "TYPE", part)
		mount, _ := inv.run(ctx, "findmnt", "-n", "-o", "TARGET", part)
		size, err := inv.Size(ctx, part)
		if err != nil {
			size = -1
		}
		partitions = append(partitions, BlockDevice{
			Name:  filepath.Base(part),
			Label: partitionLabel(size, strings.TrimSpace(fstype), strings.TrimSpace(mount)),
		})
	}
	return partitions, nil
}

type procPartition struct {
	name   string
	blocks int64
}

// parseProcPartitions 解析 /proc/partitions（major minor #blocks name）
func parseProcPartitions(data []byte) []procPartition {
	var rows []procPartition
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			continue
		}
		blocks, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		rows = append(rows, procPartition{name: fields[3], blocks: blocks})
	}
	return rows
}

func (inv *systemInventory) devicesFromProc(ctx context.Context) ([]BlockDevice, error) {
	data, err := inv.readFile("/proc/partitions")
	if err != nil {
		return nil, err
	}
	var devices []BlockDevice
	for _, row := range parseProcPartitions(data) {
		if !wholeDiskPattern.MatchString(row.name) {
			continue
		}
		devices = append(devices, BlockDevice{
			Name:  row.name,
			Label: formatSize(row.blocks*1024) + " | 未知型号",
		})
	}
	return devices, nil
}

func (inv *systemInventory) partitionsFromProc(device string) ([]BlockDevice, error) {
	data, err := inv.readFile("/proc/partitions")
	if err != nil {
		return nil, err
	}
	base := filepath.Base(device)
	var partitions []BlockDevice
	for _, row := range parseProcPartitions(data) {
		if !isPartitionOf(base, row.name) {
			continue
		}
		partitions = append(partitions, BlockDevice{
			Name:  row.name,
			Label: partitionLabel(row.blocks*1024, "", ""),
		})
	}
	return partitions, nil
}

func (inv *systemInventory) sizeLabel(ctx context.Context, path string) string {
	size, err := inv.Size(ctx, path)
	if err != nil {
		return formatSize(-1)
	}
	return formatSize(size)
}

func partitionLabel(size int64, fstype, mount string) string {
	return fmt.Sprintf("%s | %s | %s", formatSize(size), orDefault(fstype, "未知"), orDefault(mount, "未挂载"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var devicesCmd = &cobra.Command{
	Use:   "devices [device]",
	Short: "列出存储设备，或指定设备上的分区",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv := newSystemInventory()
		var (
			items []BlockDevice
			err   error
		)
		if len(args) == 1 {
			items, err = inv.Partitions(cmd.Context(), args[0])
		} else {
			items, err = inv.Devices(cmd.Context())
		}
		if err != nil {
			return err
		}
		for _, d := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", d.Path(), d.Label)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
