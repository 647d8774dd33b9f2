package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s3_index"
)

var listIndicesCmd = &cobra.Command{
	Use:   "list-indices",
	Short: "List stored indices",
	Long: `Lists every stored index with its constituent count and date coverage.

Example:
  go run ./cmd/equindex list-indices`,
	Args: cobra.NoArgs,
	RunE: runListIndices,
}

var showIndexCmd = &cobra.Command{
	Use:   "show-index NAME",
	Short: "Print the values of one index",
	Long: `Prints the stored values of one index in ascending date order.

Example:
  go run ./cmd/equindex show-index SECTOR-INDUSTRY-Financials-Banks
  go run ./cmd/equindex show-index SECTOR-INDUSTRY-Financials-Banks --start-date 2024-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runShowIndex,
}

var (
	showStart string
	showEnd   string
)

func init() {
	rootCmd.AddCommand(listIndicesCmd)
	rootCmd.AddCommand(showIndexCmd)

	showIndexCmd.Flags().StringVar(&showStart, "start-date", "", "first day (YYYY-MM-DD)")
	showIndexCmd.Flags().StringVar(&showEnd, "end-date", "", "last day (YYYY-MM-DD)")
}

func runListIndices(cmd *cobra.Command, args []string) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summaries, err := s3_index.NewIndexRepository(rt.db.Pool).ListIndexNames(ctx, rt.cfg.Index.IndexType)
	if err != nil {
		return fmt.Errorf("list indices: %w", err)
	}

	if len(summaries) == 0 {
		PrintInfo("No indices stored yet. Run: go run ./cmd/equindex generate")
		return nil
	}

	widths := []int{56, 12, 10, 10, 6}
	PrintTableHeader([]string{"INDEX", "CONSTITUENTS", "FIRST", "LAST", "POINTS"}, widths)
	for _, s := range summaries {
		PrintTableRow([]string{
			s.IndexName,
			fmt.Sprint(s.ConstituentCount),
			formatDay(s.FirstDay),
			formatDay(s.LastDay),
			fmt.Sprint(s.Points),
		}, widths)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d index(es)", len(summaries)))
	return nil
}

func runShowIndex(cmd *cobra.Command, args []string) error {
	start, err := parseDay(showStart)
	if err != nil {
		return err
	}
	end, err := parseDay(showEnd)
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("start date %s is after end date %s", formatDay(start), formatDay(end))
	}

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	points, err := s3_index.NewIndexRepository(rt.db.Pool).Query(ctx, contracts.IndexQuery{
		Name:  args[0],
		Type:  rt.cfg.Index.IndexType,
		Start: start,
		End:   end,
	})
	if err != nil {
		return fmt.Errorf("query index: %w", err)
	}

	if len(points) == 0 {
		PrintWarning(fmt.Sprintf("No values for %s", args[0]))
		return nil
	}

	fmt.Printf("%s (%d constituents)\n\n", args[0], points[len(points)-1].ConstituentCount)
	widths := []int{10, 14}
	PrintTableHeader([]string{"DATE", "VALUE"}, widths)
	for _, p := range points {
		PrintTableRow([]string{formatDay(p.Day), p.Value.StringFixed(contracts.IndexValueScale)}, widths)
	}
	return nil
}
