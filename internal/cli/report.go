package cli

import (
	"github.com/spf13/cobra"

	"github.com/guotingchao/DeltaTransactionSystem/internal/app"
)

var (
	reportDryRun bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "执行一次抓取与分析并发送（或预览）市场播报",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReportOptions{
			DryRun: reportDryRun,
		}
		return getApp().Report(cmd.Context(), opts)
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "Print rendered messages instead of posting")
}
