package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jsnap/internal/analyzer"
	"github.com/jsnap/internal/parser/hprof"
	"github.com/jsnap/internal/progress"
	"github.com/jsnap/internal/repository"
)

var (
	// Parse command flags
	reanalyze  bool
	noProgress bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Decode a heap dump into its workspace",
	Long: `Decode a heap dump and store its tables in the workspace
{data_dir}/{file name}.

A dump whose workspace already holds a completed analysis is not decoded
again unless --reanalyze is given. If decoding stops on a corrupt record,
everything read up to that point is still stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVarP(&reanalyze, "reanalyze", "r", false, "Discard an existing analysis and decode again")
	parseCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw a progress bar")
}

func runParse(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var reporter progress.Reporter = progress.Nop{}
	if !noProgress && isTerminal(cmd.ErrOrStderr()) {
		reporter = progress.NewBar(cmd.ErrOrStderr(), "Reading file")
	}

	a := analyzer.NewSnapshotAnalyzer(cfg,
		analyzer.WithLogger(logger),
		analyzer.WithReporter(reporter),
		analyzer.WithVerbose(verbose),
	)
	res, err := a.Analyze(cmd.Context(), args[0], reanalyze)
	if res == nil {
		return err
	}

	switch {
	case res.Skipped:
		fmt.Fprintf(out, "%s %s was analyzed at %s, use -r to analyze it again\n",
			warningStyle.Render("Skipped:"), res.Workspace.Name, res.CompletedAt.Local().Format(time.DateTime))
		if res.Info != nil {
			printDumpInfo(out, res.Workspace.Dir, res.Info)
		}
	case res.Snapshot != nil:
		printSnapshot(out, res)
	}
	if err == nil && !res.Skipped {
		fmt.Fprintln(out, goodStyle.Render("Done"), mutedStyle.Render("in "+res.Duration.Round(time.Millisecond).String()))
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printField(out io.Writer, label string, value interface{}) {
	fmt.Fprintf(out, "%s %v\n", labelStyle.Render(label), value)
}

func printDumpInfo(out io.Writer, dir string, info *repository.DumpInfo) {
	fmt.Fprintln(out, titleStyle.Render("Heap dump"))
	printField(out, "Workspace", dir)
	printField(out, "Format", info.Format)
	printField(out, "ID size", info.IDSize)
	printField(out, "Timestamp", info.Timestamp.Local().Format(time.DateTime))
	printField(out, "Bytes read", humanize.Bytes(uint64(info.BytesRead)))
	printField(out, "Records", humanize.Comma(info.Records))
	printField(out, "Symbols", humanize.Comma(info.Symbols))
	printField(out, "Classes", humanize.Comma(info.Classes))
	printField(out, "Threads", humanize.Comma(info.Threads))
}

func printSnapshot(out io.Writer, res *analyzer.Result) {
	snap := res.Snapshot
	fmt.Fprintln(out, titleStyle.Render("Heap dump"))
	printField(out, "Workspace", res.Workspace.Dir)
	printField(out, "Format", snap.Header.Format)
	printField(out, "ID size", int(snap.Header.IDSize))
	printField(out, "Timestamp", snap.Header.Timestamp.Local().Format(time.DateTime))
	printField(out, "Compression", res.Compression)
	printField(out, "Bytes read", humanize.Bytes(uint64(snap.BytesRead)))
	printField(out, "Symbols", humanize.Comma(int64(snap.Symbols.Len())))
	printField(out, "Classes", humanize.Comma(int64(snap.Classes.Len())))
	printField(out, "Threads", humanize.Comma(int64(len(snap.Threads))))
	fmt.Fprintln(out)

	fmt.Fprintln(out, titleStyle.Render("Records"))
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Tag", "Name", "Count"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, tag := range sortedTags(snap.RecordCounts) {
		table.Append([]string{
			fmt.Sprintf("0x%02X", uint8(tag)),
			tag.String(),
			humanize.Comma(snap.RecordCounts[tag]),
		})
	}
	table.Render()

	if snap.HeapDump.Segments > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("Heap dump contents"))
		hd := snap.HeapDump
		printField(out, "Segments", humanize.Comma(hd.Segments))
		printField(out, "GC roots", humanize.Comma(hd.TotalRoots()))
		printField(out, "Class dumps", humanize.Comma(hd.ClassDumps))
		printField(out, "Instances", humanize.Comma(hd.Instances))
		printField(out, "Object arrays", humanize.Comma(hd.ObjectArrays))
		printField(out, "Prim. arrays", humanize.Comma(hd.PrimitiveArrays))
		if hd.Skipped > 0 {
			printField(out, "Skipped", humanize.Comma(hd.Skipped))
		}
	}
	if snap.SkippedRecords > 0 {
		fmt.Fprintf(out, "%s %d records with unknown tags were skipped\n",
			warningStyle.Render("Note:"), snap.SkippedRecords)
	}
}

func sortedTags(counts map[hprof.RecordTag]int64) []hprof.RecordTag {
	tags := make([]hprof.RecordTag, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
