package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/campaign-chat/internal/app"
	"github.com/nguyentranbao-ct/campaign-chat/internal/server"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "campaign-chat",
	Short:         "Realtime campaign chat client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the campaign session behind a local HTTP gateway",
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(server.StartServer).Run()
	},
}

var (
	tailChannel string
	tailFormat  string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a channel and log every change until interrupted",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if tailChannel != "" {
			return os.Setenv("SESSION_CHANNEL_ID", tailChannel)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseTailFormat(tailFormat)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		app.Invoke(func(lc fx.Lifecycle, session *usecase.Session) {
			startTail(lc, session, format, out)
		}).Run()
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVarP(&tailChannel, "channel", "c", "", "channel to follow (defaults to SESSION_CHANNEL_ID)")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", defaultTailFormat, "Go template for each message line")
	rootCmd.AddCommand(gatewayCmd, tailCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Root().Fatal(err)
	}
}
