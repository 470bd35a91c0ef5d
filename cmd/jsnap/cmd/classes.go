package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jsnap/internal/parser/hprof"
	"github.com/jsnap/internal/repository"
	apperrors "github.com/jsnap/pkg/errors"
)

var (
	// Classes command flags
	classNameFilter string
	classStatus     string
	classLimit      int
	classOffset     int
)

var classesCmd = &cobra.Command{
	Use:   "classes <file>",
	Short: "List the classes of an analysed dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runClasses,
}

func init() {
	rootCmd.AddCommand(classesCmd)

	classesCmd.Flags().StringVar(&classNameFilter, "name", "", "Only classes whose name contains this text")
	classesCmd.Flags().StringVar(&classStatus, "status", "all", "Filter by status: loaded, unloaded, all")
	classesCmd.Flags().IntVarP(&classLimit, "limit", "n", 100, "Maximum number of classes to print (0 for all)")
	classesCmd.Flags().IntVar(&classOffset, "offset", 0, "Number of classes to skip")
}

func parseClassStatus(s string) (*hprof.ClassStatus, error) {
	var status hprof.ClassStatus
	switch s {
	case "", "all":
		return nil, nil
	case "loaded":
		status = hprof.ClassLoaded
	case "unloaded":
		status = hprof.ClassUnloaded
	default:
		return nil, apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("invalid class status %q (valid: loaded, unloaded, all)", s))
	}
	return &status, nil
}

func runClasses(cmd *cobra.Command, args []string) error {
	status, err := parseClassStatus(classStatus)
	if err != nil {
		return err
	}
	filter := repository.ClassFilter{
		NameContains: classNameFilter,
		Status:       status,
		Limit:        classLimit,
		Offset:       classOffset,
	}

	return withRepositories(cmd.Context(), args[0], func(repo repository.SnapshotRepository) error {
		classes, err := repo.ListClasses(cmd.Context(), filter)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list classes", err)
		}

		out := cmd.OutOrStdout()
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Serial", "Class ID", "Name", "Status", "Trace"})
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, c := range classes {
			table.Append([]string{
				strconv.FormatUint(uint64(c.SerialNumber), 10),
				fmt.Sprintf("0x%x", c.ClassID),
				c.Name,
				c.Status.String(),
				strconv.FormatUint(uint64(c.StackTraceSerial), 10),
			})
		}
		table.Render()
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d classes", len(classes))))
		return nil
	})
}
