package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustAcceptCmd)
	trustCmd.AddCommand(trustForgetCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and manage recorded host key fingerprints",
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded host key bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		records := app.trust.List()
		if len(records) == 0 {
			cmd.Println("no trust records")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tFINGERPRINT\tFIRST SEEN")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Address, rec.Fingerprint, rec.FirstSeen.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var trustAcceptCmd = &cobra.Command{
	Use:   "accept <address> <fingerprint>",
	Short: "Record a host key binding ahead of first contact",
	Long: "Binds an address to a SHA256 host key fingerprint. Connections to\n" +
		"the address then require exactly this key, regardless of policy.\n" +
		"Fails if a different fingerprint is already recorded; use\n" +
		"\"trust forget\" first to deliberately rebind.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.trust.Accept(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		cmd.Printf("recorded %s -> %s\n", args[0], args[1])
		return nil
	},
}

var trustForgetCmd = &cobra.Command{
	Use:   "forget <address>",
	Short: "Remove the recorded binding for an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.trust.Forget(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("forgot %s\n", args[0])
		return nil
	},
}
