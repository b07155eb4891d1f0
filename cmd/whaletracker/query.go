package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamashdown/whaletracker/internal/alerts"
	"github.com/liamashdown/whaletracker/internal/processor"
	"github.com/liamashdown/whaletracker/internal/whale"
)

var (
	queryLimit     int
	recentFormat   string
	alertsDispatch bool

	thresholdFlags = map[string]*float64{
		"mega":   new(float64),
		"large":  new(float64),
		"medium": new(float64),
		"small":  new(float64),
		"min-tx": new(float64),
	}
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent whale transactions, most impactful first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		txs := a.service.GetRecentWhaleTransactions(cmd.Context(), queryLimit)
		if recentFormat == "json" {
			return printJSON(cmd.OutOrStdout(), txs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTOKEN\tUSD\tIMPACT\tTIER\tFROM\tTO\tHASH")
		for _, tx := range txs {
			fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\t%s\t%s\t%s\t%s\n",
				tx.Timestamp.UTC().Format(time.RFC3339),
				tx.Token.Symbol,
				tx.AmountUSD,
				tx.Impact,
				tx.WhaleType,
				alerts.ShortenAddress(tx.From),
				alerts.ShortenAddress(tx.To),
				alerts.ShortenHash(tx.Hash),
			)
		}
		return w.Flush()
	}),
}

var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Analyse whale activity for a token",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd.OutOrStdout(), a.service.GetTokenWhaleAnalysis(cmd.Context(), args[0]))
	}),
}

var holdersCmd = &cobra.Command{
	Use:   "holders <token>",
	Short: "List the largest holders of a token",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd.OutOrStdout(), a.service.GetTokenHolders(cmd.Context(), args[0], queryLimit))
	}),
}

var addressCmd = &cobra.Command{
	Use:   "address <address>",
	Short: "Profile a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd.OutOrStdout(), a.service.GetWhaleAddress(cmd.Context(), args[0]))
	}),
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show current whale insights",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd.OutOrStdout(), a.service.GetWhaleInsights(cmd.Context()))
	}),
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show current alert buckets, optionally dispatching them once",
	Long: `Print large transfers, new whales, unusual activity and risk alerts.
With --dispatch the buckets are also sent through ALERT_MODE once, using the
same ledger and cooldown rules as the serve loop.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !alertsDispatch {
			return printJSON(cmd.OutOrStdout(), a.service.GetWhaleAlerts(cmd.Context()))
		}

		l, err := openLedger(a)
		if err != nil {
			return err
		}
		defer l.Close()

		proc := processor.New(a.cfg, a.service, l, alerts.NewFromConfig(a.cfg, a.log), a.log)
		return proc.ProcessAlerts(cmd.Context())
	}),
}

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show the effective whale thresholds",
	Long: `Print the whale tier thresholds after the environment and WHALE_THRESHOLDS_FILE
overlays. Any of --mega, --large, --medium, --small or --min-tx previews the
result of a partial update and reports whether it would be accepted.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		var u whale.ThresholdsUpdate
		changed := false
		set := func(name string, dst **float64) {
			if cmd.Flags().Changed(name) {
				*dst = thresholdFlags[name]
				changed = true
			}
		}
		set("mega", &u.Mega)
		set("large", &u.Large)
		set("medium", &u.Medium)
		set("small", &u.Small)
		set("min-tx", &u.MinWhaleTx)

		if !changed {
			return printJSON(cmd.OutOrStdout(), a.service.GetWhaleThresholds())
		}

		t, err := a.service.SetWhaleThresholds(cmd.Context(), u)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), t)
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report explorer API key and data mode",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd.OutOrStdout(), a.service.GetAPIKeyStatus())
	}),
}

func init() {
	rootCmd.AddCommand(recentCmd, tokenCmd, holdersCmd, addressCmd, insightsCmd, alertsCmd, thresholdsCmd, statusCmd)

	recentCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum transactions to return (0 for the default)")
	recentCmd.Flags().StringVar(&recentFormat, "format", "table", "Output format: table, json")
	holdersCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum holders to return (0 for the default)")
	alertsCmd.Flags().BoolVar(&alertsDispatch, "dispatch", false, "Send the current alerts once instead of printing them")

	usage := map[string]string{
		"mega":   "Mega tier floor in USD",
		"large":  "Large tier floor in USD",
		"medium": "Medium tier floor in USD",
		"small":  "Small tier floor in USD",
		"min-tx": "Minimum whale transaction in USD",
	}
	for name, dst := range thresholdFlags {
		thresholdsCmd.Flags().Float64Var(dst, name, 0, usage[name])
	}
}

// withApp wires the tracker for a one-shot command and releases it afterwards
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := run(cmd, a, args); err != nil {
			return err
		}
		if a.service.IsUsingMockData() {
			fmt.Fprintln(os.Stderr, "note: results are mock data")
		}
		return nil
	}
}
