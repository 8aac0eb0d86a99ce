package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/address-cli/internal/store"
)

var (
	listLocality string
	listLimit    int
	listOffset   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		addrs, err := st.ListAddresses(ctx, store.AddressFilter{
			Locality: listLocality,
			Limit:    listLimit,
			Offset:   listOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list addresses")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tDISPLAY\tRAW")
		for _, a := range addrs {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.String(), a.Raw)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listLocality, "locality", "", "filter by locality name")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "max rows")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")
	rootCmd.AddCommand(listCmd)
}
