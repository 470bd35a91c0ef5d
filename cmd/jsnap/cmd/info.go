package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jsnap/internal/analyzer"
	"github.com/jsnap/internal/repository"
	apperrors "github.com/jsnap/pkg/errors"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Describe an analysed dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := analyzer.NewSnapshotAnalyzer(cfg).Workspace(args[0])
		if err != nil {
			return err
		}
		return withRepositories(cmd.Context(), args[0], func(repo repository.SnapshotRepository) error {
			info, err := repo.GetDumpInfo(cmd.Context())
			if err != nil {
				if apperrors.IsNotFound(err) {
					return err
				}
				return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to read dump info", err)
			}
			printDumpInfo(cmd.OutOrStdout(), ws.Dir, info)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
