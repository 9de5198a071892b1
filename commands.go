package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fitremind/internal/models"
	"fitremind/internal/settings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
)

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Run one background delivery check (for cron or a system timer)",
	Long: `Checks whether a reminder is due and delivers it at most once.
The outcome is printed as JSON. The command exits 0 even when delivery
failed; failures are logged.`,
	RunE: runWake,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored settings and the next reminder",
	RunE:  runStatus,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the reminder config",
	Example: `  fitremind set --start 9 --end 17 --interval 30 --exercise squats:10 --exercise pushups:5
  fitremind set --disable`,
	RunE: runSet,
}

var vapidCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

var setFlags struct {
	enable    bool
	disable   bool
	start     int
	end       int
	interval  int
	exercises []string
}

func init() {
	f := setCmd.Flags()
	f.BoolVar(&setFlags.enable, "enable", false, "enable reminders")
	f.BoolVar(&setFlags.disable, "disable", false, "disable reminders")
	f.IntVar(&setFlags.start, "start", -1, "first hour of the active window (0-23)")
	f.IntVar(&setFlags.end, "end", -1, "last hour of the active window (0-23)")
	f.IntVar(&setFlags.interval, "interval", 0, "minutes between reminders")
	f.StringArrayVar(&setFlags.exercises, "exercise", nil, "exercise as type:count, replaces the catalog when given")
	setCmd.MarkFlagsMutuallyExclusive("enable", "disable")

	rootCmd.AddCommand(wakeCmd, statusCmd, setCmd, vapidCmd)
}

func runWake(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	h, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer h.close()

	return printJSON(cmd, h.engine.Wake(ctx))
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	h, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer h.close()

	st, err := h.engine.Settings(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"settings": st,
		"status":   h.engine.Status(ctx),
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	h, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer h.close()

	st, err := h.engine.Settings(ctx)
	if err != nil {
		return err
	}
	rc := st.Config()

	f := cmd.Flags()
	switch {
	case setFlags.enable:
		rc.Enabled = true
	case setFlags.disable:
		rc.Enabled = false
	}
	if f.Changed("start") {
		rc.Window.StartHour = setFlags.start
	}
	if f.Changed("end") {
		rc.Window.EndHour = setFlags.end
	}
	if f.Changed("interval") {
		rc.IntervalMinutes = setFlags.interval
	}
	if len(setFlags.exercises) > 0 {
		catalog, err := parseExercises(setFlags.exercises)
		if err != nil {
			return err
		}
		rc.Exercises = catalog
	}

	if err := h.engine.UpdateConfig(ctx, rc); err != nil {
		return err
	}
	warnIfNotPersisted(cmd.ErrOrStderr(), h.store)
	return printJSON(cmd, rc)
}

// warnIfNotPersisted reports a write the resilient store kept in memory
// only. A one-shot command exits right after, so the change is lost.
func warnIfNotPersisted(w io.Writer, store *settings.Resilient) bool {
	if store == nil || !store.Degraded() {
		return false
	}
	fmt.Fprintln(w, "warning: settings storage unavailable, the change was not saved")
	return true
}

func parseExercises(specs []string) ([]models.Exercise, error) {
	out := make([]models.Exercise, 0, len(specs))
	for _, s := range specs {
		typ, countStr, ok := strings.Cut(s, ":")
		if !ok || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("invalid exercise %q, want type:count", s)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil {
			return nil, fmt.Errorf("invalid count in %q: %w", s, err)
		}
		out = append(out, models.Exercise{Type: strings.TrimSpace(typ), Count: count})
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
