package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamsxin/memrecycle/ipc"
	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest memory sample and the active policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}
				fmt.Fprintln(out, resp.Line)
				fmt.Fprintln(out, renderStatus(resp.Display))
				if ev := resp.Display.LastEvent; ev != nil {
					fmt.Fprintln(out, "Last recycle:")
					fmt.Fprintln(out, renderEvent(ev))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newRecycleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recycle",
		Short: "Restart the target process now, regardless of its memory use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Recycle()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch resp.Result.Outcome {
				case types.OutcomeSkipped:
					fmt.Fprintln(out, "A check is already running, try again in a moment")
				case types.OutcomeNotRunning:
					fmt.Fprintf(out, "%s is not running\n", resp.Result.Policy.ProcessName)
				default:
					if ev := resp.Result.Event; ev != nil {
						fmt.Fprintln(out, renderEvent(ev))
						if ev.Failed() {
							return errors.New("recycle failed: " + ev.Err)
						}
					}
					fmt.Fprintf(out, "Outcome: %s\n", resp.Outcome)
				}
				return nil
			})
		},
	}
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <process|interval|threshold> <value>",
		Short: "Change one policy field",
		Long: "Change one policy field. Values may be a choice label such as \"5 mins\" or \"1 gb\",\n" +
			"or a plain number of milliseconds (interval) or megabytes (threshold).",
		Example: "  memrecycle set interval 5 mins\n  memrecycle set threshold 700\n  memrecycle set process MetroTwitLoop",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.Join(args[1:], " ")
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetPolicy(args[0], value)
				if err != nil {
					return err
				}
				if resp.Warning != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s\n", resp.Warning)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPolicy(resp.Policy))
				return nil
			})
		},
	}
}

func newChoicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "choices [process|interval|threshold]",
		Short: "List the preset values for policy fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var field string
			if len(args) == 1 {
				field = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Choices(field)
				if err != nil {
					return err
				}
				for _, g := range resp.Groups {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (current: %s)\n", g.Field, g.Current)
					fmt.Fprintln(cmd.OutOrStdout(), renderChoices(g.Choices))
				}
				return nil
			})
		},
	}
}

func renderStatus(d types.Display) string {
	sampled := "never"
	if !d.SampledAt.IsZero() {
		sampled = d.SampledAt.Local().Format(time.DateTime)
	}
	rows := [][]string{
		{"Process", d.Policy.ProcessName},
		{"Running", yesNo(d.Running)},
		{"Private memory", fmt.Sprintf("%d mb", d.SampleMB)},
		{"Threshold", policy.Label(policy.FieldThreshold, d.Policy)},
		{"Check interval", policy.Label(policy.FieldInterval, d.Policy)},
		{"Sampled at", sampled},
		{"Check running", yesNo(d.Busy)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderPolicy(p types.Policy) string {
	rows := make([][]string, 0, len(policy.Fields))
	for _, f := range policy.Fields {
		rows = append(rows, []string{string(f), policy.Label(f, p)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderChoices(choices []policy.Choice) string {
	rows := make([][]string, 0, len(choices))
	for _, c := range choices {
		mark := ""
		if c.Selected {
			mark = "*"
		}
		rows = append(rows, []string{mark, c.Label, c.Value})
	}
	return renderTable([]string{"", "Choice", "Value"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}

func renderEvent(ev *types.RecycleEvent) string {
	result := fmt.Sprintf("restarted as pid %d", ev.NewPID)
	if ev.Failed() {
		result = "failed: " + ev.Err
	}
	rows := [][]string{
		{"Event", ev.ID},
		{"Process", fmt.Sprintf("%s (pid %d)", ev.ProcessName, ev.PID)},
		{"Trigger", ev.Trigger.String()},
		{"Memory", fmt.Sprintf("%d mb of %d mb", ev.SampleMB, ev.ThresholdMB)},
		{"Executable", ev.ExePath},
		{"Forced kill", yesNo(ev.Forced)},
		{"Result", result},
		{"Took", ev.Duration().Round(time.Millisecond).String()},
	}
	if ev.Host.TotalMB > 0 {
		rows = append(rows, []string{"Host memory", fmt.Sprintf("%d / %d mb (%.0f%%)", ev.Host.UsedMB, ev.Host.TotalMB, ev.Host.UsedPercent)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
