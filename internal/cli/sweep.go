package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Run one aging sweep",
		Long:  "Promote, demote and evict memories in the configured store according to the aging policy, then print the sweep counts.",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	rt := openRuntime()
	defer rt.Close()

	res, err := rt.Engine.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	printJSON(res)
	return nil
}
