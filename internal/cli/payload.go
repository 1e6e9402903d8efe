package cli

import (
	"github.com/spf13/cobra"

	"remex/internal/payload"
)

var payloadPlatform string

func init() {
	rootCmd.AddCommand(payloadCmd)
	payloadCmd.AddCommand(payloadBuildCmd)
	payloadBuildCmd.Flags().StringVar(&payloadPlatform, "platform", payload.DefaultPlatform, "Platform class to build for")
}

var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Build and inspect the bootstrap runtime package",
}

var payloadBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the runtime package and print its checksum",
	Long: "Builds the runtime archive deterministically and caches it in the\n" +
		"database. Rebuilding unchanged sources yields the same checksum.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		builder := payload.NewBuilder(app.cfg.Payload.Version, app.repo, app.logger)
		pkg, err := builder.Build(cmd.Context(), payloadPlatform)
		if err != nil {
			return err
		}

		cmd.Printf("version:  %s\n", pkg.Version)
		cmd.Printf("platform: %s\n", pkg.Platform)
		cmd.Printf("checksum: %s\n", pkg.Checksum)
		cmd.Printf("bytes:    %d\n", len(pkg.Data))
		return nil
	},
}
