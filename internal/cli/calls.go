package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCallsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recent upstream API calls (Alpaca, SEC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			st, err := a.openStack()
			if err != nil {
				return err
			}
			defer st.Close()

			calls, err := st.sqlite.RecentAPICalls(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPROVIDER\tENDPOINT\tSTATUS\tERROR")
			for _, c := range calls {
				status := fmt.Sprint(c.StatusCode)
				if !c.Success && c.StatusCode == 0 {
					status = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					c.CreatedAt.Local().Format("2006-01-02 15:04:05"), c.Provider, c.Endpoint, status, c.ErrorMessage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of calls to show")
	return cmd
}
