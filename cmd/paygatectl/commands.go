package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"paygate/internal/auth"
	"paygate/internal/db/migrations"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/gateway"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations to DB_ADDR",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		clientID int64
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an API client",
		Long: `Issue a bearer token for an API client.

The token is signed with AUTH_TOKEN_SECRET and carries AUTH_TOKEN_ISS and
AUTH_TOKEN_AUD, matching what the API server validates.

Examples:
  paygatectl token --client 42
  paygatectl token --client 42 --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID <= 0 {
				return fmt.Errorf("--client must be a positive id")
			}
			secret := os.Getenv("AUTH_TOKEN_SECRET")
			if secret == "" {
				return fmt.Errorf("AUTH_TOKEN_SECRET is required")
			}
			a := auth.NewJWTAuthenticator(secret, getenv("AUTH_TOKEN_AUD", "paygate-clients"), getenv("AUTH_TOKEN_ISS", "paygate"))
			token, err := a.GenerateClientToken(clientID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&clientID, "client", 0, "client id the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and settle payment orders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [trade-no]",
		Short: "Cancel a non-terminal order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *gateway.Service) error {
				o, err := svc.CancelOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mark [trade-no] [success|closed]",
		Short: "Record the channel's final verdict for a processing or unknown order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseOrderVerdict(args[1])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *gateway.Service) error {
				o, err := svc.MarkOrderResult(cmd.Context(), args[0], to)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	})

	var (
		status string
		limit  int
		offset int
	)
	list := &cobra.Command{
		Use:   "list [client-id]",
		Short: "List a client's orders, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid client id %q", args[0])
			}
			return withService(cmd.Context(), func(svc *gateway.Service) error {
				list, total, err := svc.ListOrders(cmd.Context(), clientID, status, limit, offset)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TRADE NO\tOUT TRADE NO\tCHANNEL\tPAY WAY\tAMOUNT\tSTATUS\tCREATED")
				for _, o := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						o.TradeNo, o.OutTradeNo, o.Channel, o.PayWay, o.Amount, o.Status, o.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(tw, "\n%d of %d\n", len(list), total)
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.AddCommand(list)

	return cmd
}

func refundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refunds",
		Short: "Settle refunds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mark [refund-no] [success|failed|closed]",
		Short: "Record the channel's final verdict for a refund in flight",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseRefundVerdict(args[1])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *gateway.Service) error {
				r, err := svc.MarkRefundResult(cmd.Context(), args[0], to)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), r)
			})
		},
	})

	return cmd
}

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage client channel configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List enabled channel and pay-way configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			all, err := channels.NewRepository(pool).LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLIENT\tCHANNEL\tPAY WAY\tMERCHANT\tAPP ID\tENDPOINT")
			for _, c := range all {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ClientID, c.Channel, c.PayWay, c.MerchantID, c.AppID, c.Endpoint)
			}
			return tw.Flush()
		},
	})

	var (
		ch             channels.Channel
		way            channels.PayWay
		privateKeyFile string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register or update a channel pay-way for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ch.ClientID <= 0 || ch.Channel == "" || way.Way == "" {
				return fmt.Errorf("--client, --channel and --way are required")
			}
			if privateKeyFile != "" {
				b, err := os.ReadFile(privateKeyFile)
				if err != nil {
					return err
				}
				way.PrivateKey = string(b)
			}
			if ch.Name == "" {
				ch.Name = ch.Channel
			}

			pool, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := channels.NewRepository(pool).Upsert(cmd.Context(), &ch, &way); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %d pay way %d (%s/%s) saved for client %d\n", ch.ID, way.ID, ch.Channel, way.Way, ch.ClientID)
			return nil
		},
	}
	f := add.Flags()
	f.Int64Var(&ch.ClientID, "client", 0, "client id")
	f.StringVar(&ch.Channel, "channel", "", "channel name, e.g. wechat or mercadopago")
	f.StringVar(&ch.Name, "name", "", "display name")
	f.StringVar(&way.Way, "way", "", "pay way, e.g. mweb, mini, mp_checkout")
	f.StringVar(&way.MerchantID, "merchant-id", "", "merchant id at the channel")
	f.StringVar(&way.AppID, "app-id", "", "app id at the channel")
	f.StringVar(&way.APIKey, "api-key", "", "API key or access token")
	f.StringVar(&way.SerialNo, "serial-no", "", "merchant certificate serial number")
	f.StringVar(&privateKeyFile, "private-key-file", "", "PEM file with the merchant signing key")
	f.StringVar(&way.NotifyURL, "notify-url", "", "asynchronous notification URL")
	f.StringVar(&way.Endpoint, "endpoint", "", "override for the channel API base URL")
	cmd.AddCommand(add)

	return cmd
}

func parseOrderVerdict(s string) (orders.Status, error) {
	switch to := orders.Status(s); to {
	case orders.StatusSuccess, orders.StatusClosed:
		return to, nil
	}
	return "", fmt.Errorf("order verdict must be success or closed, got %q", s)
}

func parseRefundVerdict(s string) (refunds.Status, error) {
	to := refunds.Status(s)
	if !to.Terminal() {
		return "", fmt.Errorf("refund verdict must be success, failed or closed, got %q", s)
	}
	return to, nil
}
