package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jsnap/internal/repository"
	apperrors "github.com/jsnap/pkg/errors"
)

var threadsCmd = &cobra.Command{
	Use:   "threads <file>",
	Short: "List the threads of an analysed dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreads,
}

func init() {
	rootCmd.AddCommand(threadsCmd)
}

func runThreads(cmd *cobra.Command, args []string) error {
	return withRepositories(cmd.Context(), args[0], func(repo repository.SnapshotRepository) error {
		threads, err := repo.ListThreads(cmd.Context())
		if err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list threads", err)
		}

		out := cmd.OutOrStdout()
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Serial", "Name", "Group", "Parent Group", "Object ID", "Trace", "State"})
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, t := range threads {
			state := "live"
			if t.Ended {
				state = "ended"
			}
			table.Append([]string{
				strconv.FormatInt(t.SerialNum, 10),
				t.Name,
				t.GroupName,
				t.ParentGroupName,
				fmt.Sprintf("0x%x", uint64(t.ThreadObjID)),
				strconv.FormatInt(t.TraceSerialNum, 10),
				state,
			})
		}
		table.Render()
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d threads", len(threads))))
		return nil
	})
}
