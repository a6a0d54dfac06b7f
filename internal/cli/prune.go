package cli

import (
	"github.com/spf13/cobra"

	"github.com/guotingchao/DeltaTransactionSystem/internal/app"
)

var (
	pruneRetentionDays int
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "手动清理超过保留期限的价格记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PruneOptions{
			RetentionDays: pruneRetentionDays,
		}
		return getApp().Prune(cmd.Context(), opts)
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneRetentionDays, "retention-days", 0, "Override configured retention horizon")
}
