package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeSpace 返回目录所在文件系统对普通用户可用的字节数
func freeSpace(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("获取可用空间失败 (%s): %w", dir, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

// checkSpace 需要的空间超过可用空间时返回 ErrInsufficientSpace，仅作提示
func checkSpace(need, available int64, what string) error {
	if need <= available {
		return nil
	}
	return fmt.Errorf("%w: %s (%s) 可能超过可用空间 (%s)",
		ErrInsufficientSpace, what, formatSize(need), formatSize(available))
}
