package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jsnap/internal/parser/hprof"
	"github.com/jsnap/internal/repository"
	apperrors "github.com/jsnap/pkg/errors"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file> [id...]",
	Short: "Count symbols or look up symbol ids",
	Long: `Without ids, print the number of stored symbols. With ids (decimal or
0x-prefixed hex), print the name of each; unknown ids print their
placeholder name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSymbols,
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid symbol id %q", a), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runSymbols(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args[1:])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	return withRepositories(cmd.Context(), args[0], func(repo repository.SnapshotRepository) error {
		if len(ids) == 0 {
			n, err := repo.CountSymbols(cmd.Context())
			if err != nil {
				return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to count symbols", err)
			}
			printField(out, "Symbols", humanize.Comma(n))
			return nil
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"ID", "Name"})
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, id := range ids {
			name, err := repo.GetSymbol(cmd.Context(), id)
			switch {
			case apperrors.IsNotFound(err):
				name = hprof.UnresolvedName(id)
			case err != nil:
				return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to look up symbol", err)
			}
			table.Append([]string{fmt.Sprintf("0x%x", id), name})
		}
		table.Render()
		return nil
	})
}
