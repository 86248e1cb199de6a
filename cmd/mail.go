package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/aolus-software/rbac-api/internal/mailer"
	"github.com/spf13/cobra"
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Mail delivery commands",
}

var mailTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test message through the configured mail driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := setupLogger(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), mailTestTimeout)
		defer cancel()

		msg := mailer.Message{
			Kind:    mailer.KindTest,
			To:      mailTestTo,
			Subject: cfg.App.Name + " test message",
			Body:    "This message confirms that " + cfg.App.Name + " can deliver mail.\n",
		}
		if err := newMailSender(cfg.Mail, lg).Send(ctx, msg); err != nil {
			return fmt.Errorf("test mail failed: %w", err)
		}
		lg.Info("test mail sent", "driver", cfg.Mail.Driver, "to", mailTestTo)
		return nil
	},
}

var (
	mailTestTo      string
	mailTestTimeout = 30 * time.Second
)

func init() {
	mailTestCmd.Flags().StringVar(&mailTestTo, "to", "", "recipient address")
	_ = mailTestCmd.MarkFlagRequired("to")
	mailTestCmd.Flags().DurationVar(&mailTestTimeout, "timeout", mailTestTimeout, "delivery timeout")

	mailCmd.AddCommand(mailTestCmd)
}
