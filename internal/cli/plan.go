package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/memstore"
	"github.com/arnavshah/capacity-scheduler-api/pkg/scheduler"
)

type planOptions struct {
	data     string
	rules    string
	job      string
	mode     string
	anchor   string
	count    int
	capacity float64
	asJSON   bool
}

func PlanCmd() *cobra.Command {
	opts := planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Merge a dataset file into a job or company schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.data, "data", "dataset.yaml", "Dataset file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.rules, "rules", "rules.yaml", "Rules file")
	cmd.Flags().StringVar(&opts.job, "job", "", "Job key; empty plans every qualifying job")
	cmd.Flags().StringVar(&opts.mode, "mode", "week", "Bucket mode: day, week or month")
	cmd.Flags().StringVar(&opts.anchor, "anchor", "", "First bucket date, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&opts.count, "count", 8, "Number of buckets")
	cmd.Flags().Float64Var(&opts.capacity, "capacity", 400, "Company capacity hours per workday")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func runPlan(cmd *cobra.Command, opts planOptions) error {
	mode, err := calendar.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	anchor := calendar.Date(time.Now())
	if opts.anchor != "" {
		d, ok := calendar.ParseDate(opts.anchor)
		if !ok {
			return fmt.Errorf("invalid anchor %q", opts.anchor)
		}
		anchor = d
	}
	if opts.count < 1 {
		return fmt.Errorf("count must be positive")
	}
	rules, err := config.LoadRules(opts.rules)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := memstore.LoadFile(ctx, opts.data)
	if err != nil {
		return err
	}
	planner := scheduler.NewPlanner(store, nil, nil, 0, rules.JobFilter)

	out := cmd.OutOrStdout()
	if opts.job != "" {
		js, err := planner.JobSchedule(ctx, opts.job, mode, anchor, opts.count)
		if err != nil {
			return fmt.Errorf("job %q: %w", opts.job, err)
		}
		if opts.asJSON {
			return writeJSON(out, js)
		}
		fmt.Fprintf(out, "%s (authoritative: %s)\n", js.JobKey, js.Authoritative)
		return writeBuckets(out, js.Buckets, 0)
	}

	cs, err := planner.CompanySchedule(ctx, mode, anchor, opts.count)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(out, cs)
	}
	fmt.Fprintf(out, "%d jobs\n", len(cs.Jobs))
	return writeBuckets(out, cs.Buckets, opts.capacity)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeBuckets prints one row per bucket. A positive daily capacity adds
// capacity and remaining columns.
func writeBuckets(w io.Writer, buckets []scheduler.BucketHours, daily float64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if daily > 0 {
		fmt.Fprintln(tw, "BUCKET\tHOURS\tSOURCE\tCAPACITY\tREMAINING")
	} else {
		fmt.Fprintln(tw, "BUCKET\tHOURS\tSOURCE")
	}
	for _, b := range buckets {
		if daily > 0 {
			capacity := daily * float64(calendar.WorkdaysBetween(b.Start, b.End))
			fmt.Fprintf(tw, "%s\t%.1f\t%s\t%.1f\t%.1f\n", b.Key, b.Hours, b.Source, capacity, capacity-b.Hours)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", b.Key, b.Hours, b.Source)
	}
	return tw.Flush()
}
