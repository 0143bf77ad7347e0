package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/awaistahir/smart-heat/internal/config"
	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/awaistahir/smart-heat/internal/heating"
	"github.com/awaistahir/smart-heat/internal/prices"
	"github.com/awaistahir/smart-heat/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-heat",
		Short: "SmartHeat - Schedule heating around Octopus Agile prices",
		Long: `SmartHeat keeps your comfort windows warm while switching the heater on
only in the cheapest half-hour slots of the Octopus Agile tariff.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smartheat/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "database path (default is $HOME/.smartheat/smartheat.db)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(profileCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return store.NewStore(cfg.DBPath)
}

func octopusClient() *prices.OctopusClient {
	return prices.NewOctopusClient(cfg.Octopus.BaseURL, cfg.Octopus.APIKey, cfg.Octopus.ProductCode, cfg.Tariff())
}

func newService(st *store.Store) (*heating.Service, error) {
	fallback, err := cfg.DefaultProfile()
	if err != nil {
		return nil, err
	}
	return heating.NewService(heating.Options{
		Rates:    octopusClient(),
		Store:    st,
		Tariff:   cfg.Tariff(),
		Location: cfg.Location(),
		Fallback: fallback,
	}), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fetchCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch unit rates from Octopus Agile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc := cfg.Location()

			if date == "today" {
				st, err := openStore()
				if err != nil {
					return err
				}
				defer st.Close()

				svc, err := newService(st)
				if err != nil {
					return err
				}
				res, err := svc.Rates(ctx, time.Now())
				if err != nil {
					return err
				}
				if res.Cached {
					logrus.WithField("as_at", res.AsAt).Warn("serving cached rates")
				}
				return printJSON(cmd.OutOrStdout(), res.Rates)
			}

			day, err := time.ParseInLocation("2006-01-02", date, loc)
			if err != nil {
				return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
			}
			rates, err := octopusClient().Rates(ctx, day, day.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rates)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to fetch (YYYY-MM-DD or 'today')")

	return cmd
}

func planCmd() *cobra.Command {
	var ratesFile string
	var strategy string
	var table bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the heating schedule for today and tomorrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(st)
			if err != nil {
				return err
			}
			profile, err := svc.Profile()
			if err != nil {
				return err
			}
			if strategy != "" {
				profile.Config.Strategy = engine.Strategy(strategy)
			}
			params, err := profile.Params()
			if err != nil {
				return err
			}

			var rates []engine.Rate
			if ratesFile != "" {
				rates, err = readRates(ratesFile)
			} else {
				var res *heating.RatesResult
				res, err = svc.Rates(ctx, time.Now())
				if res != nil {
					rates = res.Rates
				}
			}
			if err != nil {
				return err
			}
			logrus.WithField("slots", len(rates)).Debug("planning")

			res, err := engine.Optimise(rates, params)
			if err != nil {
				return err
			}

			if table {
				return printTable(cmd.OutOrStdout(), res, profile, params.Location)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&ratesFile, "rates-file", "", "read rates from a JSON file instead of the API")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "override the profile strategy (greedy or optimal)")
	cmd.Flags().BoolVarP(&table, "table", "t", false, "print a per-slot table instead of JSON")

	return cmd
}

func readRates(path string) ([]engine.Rate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rates []engine.Rate
	if err := json.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", engine.ErrInvalidInput, path, err)
	}
	return rates, nil
}

func printTable(out io.Writer, res *engine.Result, profile *engine.Profile, loc *time.Location) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPRICE\tHEAT\tWARM\tCOST")
	for _, v := range res.Plan.Slots(profile.PowerKW) {
		heat, warm := "", ""
		if v.On {
			heat = "on"
		}
		if v.Warm {
			warm = "yes"
		}
		fmt.Fprintf(tw, "%s\t%.2fp\t%s\t%s\t£%.3f\n", v.Time.In(loc).Format("Mon 15:04"), v.Price, heat, warm, v.Cost)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := res.Summary
	fmt.Fprintf(out, "\n%d of %d slots on (%.1f h), comfort %d/%d warm, est. £%.2f\n",
		s.OnSlots, s.TotalSlots, s.OnHours, s.WarmComfortSlots, s.ComfortSlots, s.CostGBP)
	if s.AverageOnPrice != nil {
		fmt.Fprintf(out, "average on price %.2fp/kWh\n", *s.AverageOnPrice)
	}
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize SmartHeat with the default heating profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(st)
			if err != nil {
				return err
			}
			profile, err := cfg.DefaultProfile()
			if err != nil {
				return err
			}
			if err := svc.SaveProfile(profile); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Initialized default heating profile")
			fmt.Fprintf(out, "Database: %s\n", cfg.DBPath)
			fmt.Fprintf(out, "Tariff: %s\n", cfg.Tariff())
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Adjust comfort windows: smart-heat profile set --comfort 07:00-09:00")
			fmt.Fprintln(out, "  2. Generate plan: smart-heat plan --table")

			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change the heating profile",
	}

	cmd.AddCommand(profileShowCmd())
	cmd.AddCommand(profileSetCmd())

	return cmd
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active heating profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(st)
			if err != nil {
				return err
			}
			profile, err := svc.Profile()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}

func profileSetCmd() *cobra.Command {
	var comfort []string
	var preheat, retain int
	var strategy, timezone, name string
	var powerKW float64

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update fields of the heating profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(st)
			if err != nil {
				return err
			}
			profile, err := svc.Profile()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("comfort") {
				profile.Comfort = nil
				for _, s := range comfort {
					w, err := engine.ParseWindow(s)
					if err != nil {
						return err
					}
					profile.Comfort = append(profile.Comfort, w)
				}
			}
			if flags.Changed("preheat") {
				profile.Config.PreheatSlots = preheat
			}
			if flags.Changed("retain") {
				profile.Config.RetainSlots = retain
			}
			if flags.Changed("strategy") {
				profile.Config.Strategy = engine.Strategy(strategy)
			}
			if flags.Changed("power-kw") {
				profile.PowerKW = powerKW
			}
			if flags.Changed("timezone") {
				profile.Timezone = timezone
			}
			if flags.Changed("name") {
				profile.Name = name
			}

			if err := svc.SaveProfile(profile); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}

	cmd.Flags().StringSliceVar(&comfort, "comfort", nil, "comfort windows as HH:mm-HH:mm (repeatable)")
	cmd.Flags().IntVar(&preheat, "preheat", 2, "slots an activation may lead a comfort slot by")
	cmd.Flags().IntVar(&retain, "retain", 4, "slots one activation keeps the home warm")
	cmd.Flags().StringVar(&strategy, "strategy", "greedy", "greedy or optimal")
	cmd.Flags().Float64Var(&powerKW, "power-kw", 1.0, "heater power in kW")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for comfort windows")
	cmd.Flags().StringVar(&name, "name", "", "profile name")

	return cmd
}
