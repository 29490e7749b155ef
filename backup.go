package main

import (
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "将分区备份为镜像文件，可选压缩、加密和分卷",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRoot(cmd, args); err != nil {
			return err
		}
		return checkTools(appConfig)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts backupOptions
		opts.Source, _ = cmd.Flags().GetString("source")
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.Yes, _ = cmd.Flags().GetBool("yes")

		return newWorkflow(cmd).runBackup(cmd.Context(), opts)
	},
}

func init() {
	backupCmd.Flags().StringP("source", "s", "", "源分区，例如 /dev/sdb1")
	backupCmd.Flags().StringP("output", "o", "", "镜像输出路径（不含 .gz/.enc 后缀）")
	backupCmd.Flags().Bool("dry-run", false, "只显示将要执行的命令")
	backupCmd.Flags().BoolP("yes", "y", false, "跳过确认")

	rootCmd.AddCommand(backupCmd)
}
