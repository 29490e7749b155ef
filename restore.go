package main

import (
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "将镜像文件还原到分区",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRoot(cmd, args); err != nil {
			return err
		}
		return checkTools(appConfig)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts restoreOptions
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Target, _ = cmd.Flags().GetString("target")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.Yes, _ = cmd.Flags().GetBool("yes")

		return newWorkflow(cmd).runRestore(cmd.Context(), opts)
	},
}

func init() {
	restoreCmd.Flags().StringP("input", "i", "", "备份镜像路径")
	restoreCmd.Flags().StringP("target", "t", "", "目标分区，例如 /dev/sdb1")
	restoreCmd.Flags().Bool("dry-run", false, "只显示将要执行的命令")
	restoreCmd.Flags().BoolP("yes", "y", false, "跳过确认")

	rootCmd.AddCommand(restoreCmd)
}
