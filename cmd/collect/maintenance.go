package main

import (
	"errors"
	"time"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/collector/sources"
	"github.com/spf13/cobra"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire pending topics past their expiry time",
	Args:  cobra.NoArgs,
	RunE:  runExpire,
}

var refreshPoolCmd = &cobra.Command{
	Use:   "refresh-pool",
	Short: "Refresh the shared pool of global sources",
	Args:  cobra.NoArgs,
	RunE:  runRefreshPool,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the source names channel documents may enable",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

var prunePool bool

func init() {
	refreshPoolCmd.Flags().BoolVar(&prunePool, "prune", false, "drop snapshots of sources that are no longer global")
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(refreshPoolCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runExpire(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Topics.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Info().Int64("expired", n).Msg("expire done")
	return printJSON(cmd, map[string]int64{"expired": n})
}

func runRefreshPool(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Redis == nil {
		return errors.New("REDIS_URL is required for the global pool")
	}

	counts, err := a.Pipeline.RefreshGlobalPool(ctx)
	if err != nil {
		return err
	}

	pooled, err := a.Pool.Sources(ctx)
	if err != nil {
		return err
	}
	out := refreshOutput{Refreshed: counts, Pruned: []string{}, Pool: []collector.PoolMeta{}}
	for _, name := range pooled {
		if prunePool && !a.Sources.IsGlobal(name) {
			if err := a.Pool.Clear(ctx, name); err != nil {
				return err
			}
			log.Info().Str("source", name).Msg("pool snapshot pruned")
			out.Pruned = append(out.Pruned, name)
			continue
		}
		m, err := a.Pool.Meta(ctx, name)
		if err != nil {
			return err
		}
		if m != nil {
			out.Pool = append(out.Pool, *m)
		}
	}
	return printJSON(cmd, out)
}

type refreshOutput struct {
	Refreshed map[string]int       `json:"refreshed"`
	Pruned    []string             `json:"pruned"`
	Pool      []collector.PoolMeta `json:"pool"`
}

type sourceInfo struct {
	Name   string `json:"name"`
	Global bool   `json:"global"`
}

// runSources needs no database; names starting with "*" are suffix
// registrations.
func runSources(cmd *cobra.Command, _ []string) error {
	reg := sources.NewDefaultRegistry(sources.Deps{})
	names := reg.Names()
	out := make([]sourceInfo, 0, len(names))
	for _, name := range names {
		out = append(out, sourceInfo{Name: name, Global: reg.IsGlobal(name)})
	}
	return printJSON(cmd, out)
}
