package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/relatia/warmth/internal/config"
	"github.com/relatia/warmth/internal/logging"
	"github.com/relatia/warmth/internal/remote"
	"github.com/relatia/warmth/internal/warmth"
)

// newService wires a one-shot client stack against the configured scoring
// service. CLI invocations are short-lived, so the cache starts cold; it
// still coalesces the IDs within a single bulk call.
func newService() (*warmth.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	client := remote.NewClient(cfg.Remote.URL, cfg.Remote.Timeout, log)
	breaker := remote.NewBreaker(client, log)
	cache := warmth.NewCache(breaker, log)
	svc := warmth.NewService(cache, breaker, log)
	svc.Tune(cfg.Cache.TTL, cfg.Cache.MaxChunk)
	return svc, nil
}

var getForce bool

var getCmd = &cobra.Command{
	Use:   "get [contact-id]",
	Short: "Fetch one contact's warmth",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rec, err := svc.RefreshSingle(ctx, args[0], "cli", getForce)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", args[0], err)
	}

	printRecord(rec)
	if days := svc.DaysUntilAttention(rec.EntityID); days > 0 {
		fmt.Printf("  reach out within: %d days\n", days)
	} else {
		fmt.Println("  needs attention now")
	}
	return nil
}

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [contact-id...]",
	Short: "Recompute warmth for many contacts at once",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	out := svc.RefreshBulk(ctx, args, "cli", refreshForce)

	ids := make([]string, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		printRecord(out[id])
	}
	if missed := len(args) - len(out); missed > 0 {
		fmt.Printf("%d contact(s) could not be refreshed\n", missed)
	}
	return nil
}

var modeCmd = &cobra.Command{
	Use:   "mode [contact-id] [slow|medium|fast|test]",
	Short: "Switch a contact's decay mode",
	Args:  cobra.ExactArgs(2),
	RunE:  runMode,
}

func runMode(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sw, err := svc.SwitchMode(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("switch mode: %w", err)
	}

	fmt.Printf("%s: %s -> %s\n", args[0], sw.ModeBefore, sw.ModeAfter)
	fmt.Printf("  score: %.1f -> %.1f (%s)\n", sw.ScoreBefore, sw.ScoreAfter, sw.BandAfter)
	return nil
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show warmth distribution across all contacts",
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sum, err := svc.Summary(ctx)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	fmt.Printf("contacts: %d  average: %.1f\n", sum.Total, sum.AverageScore)
	for _, band := range []string{"hot", "warm", "cool", "cold"} {
		if n := sum.Bands[band]; n > 0 {
			fmt.Printf("  %-5s %d\n", band, n)
		}
	}

	modes := svc.LoadModes(ctx)
	fmt.Println("modes:")
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-7s λ=%.6f  half-life %.1f days\n", name, modes[name], modes.HalfLife(name))
	}
	return nil
}

func printRecord(rec warmth.Record) {
	fmt.Printf("%s: %.1f (%s, mode %s)\n", rec.EntityID, rec.Score, rec.Band, rec.Mode)
}

func init() {
	getCmd.Flags().BoolVarP(&getForce, "force", "f", false, "Skip the cache TTL and recompute")
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "Skip the cache TTL and recompute")
}
