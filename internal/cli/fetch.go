package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finscope/internal/domain"
	"finscope/internal/hooks"
	"finscope/internal/provider"
	"finscope/internal/request"
)

// fetchFlags holds the per-operation options of the fetch command.
type fetchFlags struct {
	from, to   string
	timespan   string
	days       int
	year, half int
	comparison []string
	remote     bool
}

type fetchOp func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error)

func run[A, T any](ctx context.Context, v *hooks.Variant[A, T], arg A) (any, error) {
	defer v.Close()
	return v.Fetch(ctx, arg)
}

var fetchOps = map[string]fetchOp{
	"security": func(ctx context.Context, p provider.DataProvider, ticker string, _ fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.Security(p, opts...), ticker)
	},
	"search": func(ctx context.Context, p provider.DataProvider, query string, _ fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.SecuritySearch(p, opts...), query)
	},
	"price": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		from, to, err := f.window()
		if err != nil {
			return nil, err
		}
		return run(ctx, hooks.PriceData(p, opts...), hooks.PriceArgs{Ticker: ticker, Options: domain.PriceOptions{
			From: from, To: to, Timespan: domain.Timespan(f.timespan),
		}})
	},
	"ftd": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.FTDData(p, opts...), hooks.FTDArgs{Ticker: ticker, Options: domain.FTDOptions{Year: f.year, Half: f.half}})
	},
	"indicators": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		from, to, err := f.window()
		if err != nil {
			return nil, err
		}
		return run(ctx, hooks.TechnicalIndicators(p, opts...), hooks.RangeArgs{Ticker: ticker, Options: domain.RangeOptions{From: from, To: to}})
	},
	"swap-cycles": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.SwapCycles(p, opts...), hooks.LookbackArgs{Ticker: ticker, Options: domain.LookbackOptions{Days: f.days}})
	},
	"volatility-cycles": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.VolatilityCycles(p, opts...), hooks.LookbackArgs{Ticker: ticker, Options: domain.LookbackOptions{Days: f.days}})
	},
	"correlations": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.MarketCorrelations(p, opts...), hooks.CorrelationArgs{Ticker: ticker, Options: domain.CorrelationOptions{
			Comparison: f.comparison, Days: f.days,
		}})
	},
	"news": func(ctx context.Context, p provider.DataProvider, ticker string, f fetchFlags, opts []request.Option) (any, error) {
		return run(ctx, hooks.News(p, opts...), hooks.NewsArgs{Ticker: ticker, Options: domain.NewsOptions{Days: f.days}})
	},
}

func fetchOpNames() []string {
	names := make([]string, 0, len(fetchOps))
	for n := range fetchOps {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// window parses --from/--to. Both empty means the provider default.
func (f fetchFlags) window() (from, to time.Time, err error) {
	if f.from != "" {
		if from, err = time.Parse(time.DateOnly, f.from); err != nil {
			return from, to, fmt.Errorf("--from %q: %w", f.from, domain.ErrInvalidInput)
		}
	}
	if f.to != "" {
		if to, err = time.Parse(time.DateOnly, f.to); err != nil {
			return from, to, fmt.Errorf("--to %q: %w", f.to, domain.ErrInvalidInput)
		}
	}
	return from, to, nil
}

func newFetchCmd(a *app) *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch <op> <ticker>",
		Short: "Run one data operation and print the result as JSON",
		Long:  "Operations: " + strings.Join(fetchOpNames(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := fetchOps[args[0]]
			if !ok {
				return fmt.Errorf("unknown operation %q (want one of %s)", args[0], strings.Join(fetchOpNames(), ", "))
			}
			p, cls, err := a.dataProvider(f.remote)
			if err != nil {
				return err
			}
			defer cls()

			opts := []request.Option{request.WithPolicy(a.cfg.Policy), request.WithLogger(a.log)}
			out, err := op(cmd.Context(), p, args[1], f, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.from, "from", "", "start date (YYYY-MM-DD)")
	fl.StringVar(&f.to, "to", "", "end date (YYYY-MM-DD)")
	fl.StringVar(&f.timespan, "timespan", string(domain.TimespanDay), "bar timespan for price")
	fl.IntVar(&f.days, "days", 0, "lookback in days (0 uses the operation default)")
	fl.IntVar(&f.year, "year", 0, "FTD archive year")
	fl.IntVar(&f.half, "half", 0, "FTD archive half (1 or 2)")
	fl.StringSliceVar(&f.comparison, "comparison", nil, "comparison tickers for correlations")
	fl.BoolVar(&f.remote, "remote", false, "query ui.remote_url instead of local stores")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
