package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphummel/rackops/internal/apiclient"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
)

const defaultEndpoint = "http://localhost:8080"

type rootOptions struct {
	endpoint string
	token    string
	asJSON   bool
}

func (o *rootOptions) client() (*apiclient.Client, error) {
	endpoint, token := resolveEndpoint(o.endpoint, o.token, os.Getenv("RACKOPS_ENDPOINT"), os.Getenv("RACKOPS_TOKEN"))
	if token == "" {
		return nil, errors.New("an API token is required: pass --token or set RACKOPS_TOKEN")
	}
	return apiclient.NewClient(endpoint, token), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "rackctl",
		Short:        "Operate a rackops data center from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "rackops server URL (env RACKOPS_ENDPOINT, default "+defaultEndpoint+")")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "API bearer token (env RACKOPS_TOKEN)")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print raw JSON instead of tables")

	root.AddCommand(
		newStateCmd(opts),
		newTasksCmd(opts),
		newBuyCmd(opts),
		newHireCmd(opts),
		newClockCmd(opts, "pause", "Pause the simulation", true),
		newClockCmd(opts, "resume", "Resume the simulation", false),
		newSpeedCmd(opts),
		newSaveCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show a summary of the game state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, st)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "time\t%s\n", st.Time.Format("2006-01-02 15:04"))
			fmt.Fprintf(tw, "clock\t%s x%g\n", clockState(st.Paused), st.Speed)
			fmt.Fprintf(tw, "cash\t%.2f\n", st.Cash)
			fmt.Fprintf(tw, "power\t%.0f / %.0f W (grid %s)\n", st.Power.Load, st.Power.Capacity, onOff(st.Power.GridActive))
			fmt.Fprintf(tw, "cooling\t%.0f / %.0f W (%s)\n", st.Cooling.Load, st.Cooling.Capacity, st.Cooling.Mode)
			fmt.Fprintf(tw, "temperature\t%.1f C\n", st.ServerRoomTemp)
			fmt.Fprintf(tw, "racks\t%d\n", len(st.Layout))
			fmt.Fprintf(tw, "staged\t%d\n", len(st.Staging))
			fmt.Fprintf(tw, "tasks\t%d\n", len(st.Tasks))
			fmt.Fprintf(tw, "employees\t%d\n", len(st.Employees))
			return tw.Flush()
		},
	}
}

func clockState(paused bool) string {
	if paused {
		return "paused"
	}
	return "running"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func newTasksCmd(opts *rootOptions) *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "List, create and abort tasks",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ts, err := c.ListTasks(cmd.Context(), models.TaskStatus(status))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, ts)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPRIORITY\tSTATUS\tDESCRIPTION")
			for _, t := range ts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Priority, t.Status, t.Description)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", `Filter by status ("Pending" or "In Progress")`)

	var req scheduler.Request
	var priority int
	create := &cobra.Command{
		Use:   "create TEMPLATE",
		Short: "Queue a task from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			req.Template = args[0]
			req.Priority = models.Priority(priority)
			t, err := c.CreateTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%s)\n", t.ID, t.Description)
			return nil
		},
	}
	create.Flags().IntVar(&priority, "priority", 0, "1 Low, 2 Normal, 3 High, 4 Emergency (default: template priority)")
	create.Flags().StringVar(&req.HardwareID, "hardware", "", "Hardware catalog id")
	create.Flags().StringVar(&req.TargetLocation, "location", "", "Target rack slot, e.g. A1")
	create.Flags().StringVar(&req.TargetItem, "item", "", "Target device id")
	create.Flags().StringVar(&req.TargetPDU, "pdu", "", "PDU device id for connect_rack_to_pdu")
	create.Flags().StringVar(&req.Hostname, "hostname", "", "Hostname for configure_lan")

	abort := &cobra.Command{
		Use:   "abort ID",
		Short: "Abort a task and free its employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.AbortTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aborted %s\n", args[0])
			return nil
		},
	}

	tasks.AddCommand(list, create, abort)
	return tasks
}

func newBuyCmd(opts *rootOptions) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "buy HARDWARE_ID",
		Short: "Buy hardware boxes into inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			p, err := c.Purchase(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bought %d x %s, cash %.2f\n", qty, args[0], p.Cash)
			return nil
		},
	}
	cmd.Flags().IntVarP(&qty, "quantity", "n", 1, "Number of boxes")
	return cmd
}

func newHireCmd(opts *rootOptions) *cobra.Command {
	var skill string
	cmd := &cobra.Command{
		Use:   "hire NAME",
		Short: "Hire an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			e, err := c.Hire(cmd.Context(), args[0], skill)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hired %s (%s) as %s\n", e.Name, e.ID, e.Skill)
			return nil
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "Hardware Technician", "Employee skill")
	return cmd
}

func newClockCmd(opts *rootOptions, use, short string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setClock(cmd, opts, &paused, nil)
		},
	}
}

func newSpeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "speed MULTIPLIER",
		Short: "Change the game speed multiplier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[0], err)
			}
			return setClock(cmd, opts, nil, &speed)
		},
	}
}

func setClock(cmd *cobra.Command, opts *rootOptions, paused *bool, speed *float64) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	clock, err := c.SetClock(cmd.Context(), paused, speed)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return printJSON(cmd.OutOrStdout(), clock)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s x%g at %s\n", clockState(clock.Paused), clock.Speed, clock.Time.Format("2006-01-02 15:04"))
	return nil
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist the running game on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			id, err := c.Save(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved session %s\n", id)
			return nil
		},
	}
}
