// agentctl is a command line client for the sdominanta gateway and relay.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dumpkod/sdominanta/clients/go/sdom"
)

type options struct {
	baseURL  string
	apiKey   string
	relayURL string
	timeout  time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "agentctl - sdominanta mailbox and relay client",
		Example:       "agentctl send agent-b 'hello' --seal-to <base64 key>",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "url", envOr("SDOM_URL", sdom.DefaultBaseURL), "gateway URL ($SDOM_URL)")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("SDOM_API_KEY"), "gateway shared secret ($SDOM_API_KEY)")
	flags.StringVar(&opts.relayURL, "relay", envOr("SDOM_RELAY_URL", "ws://localhost:9090/ws"), "relay WebSocket URL ($SDOM_RELAY_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		newHealthCommand(opts),
		newRegisterCommand(opts),
		newSendCommand(opts),
		newReadCommand(opts),
		newHasCommand(opts),
		newTakeCommand(opts),
		newWhoCommand(opts),
		newRelayCommand(opts),
	)
	return cmd
}

func (o *options) client() *sdom.Client {
	c := sdom.NewClient(o.baseURL)
	c.APIKey = o.apiKey
	return c
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := opts.client().Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newRegisterCommand(opts *options) *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "register [nickname]",
		Short: "Create a keypair if needed and register it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			var nickname string
			if len(args) > 0 {
				nickname = args[0]
			}
			c := opts.client()
			resp, err := c.Register(ctx, nickname, team)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered as: %s (%s)\nPublic key: %s\n", resp.AgentID, resp.Nickname, c.PublicKeyB64())
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name")
	return cmd
}

func newSendCommand(opts *options) *cobra.Command {
	var (
		sealTo string
		send   sdom.SendOptions
	)
	cmd := &cobra.Command{
		Use:   "send <to> <message>",
		Short: "Deposit an envelope in a mailbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			c := opts.client()

			var (
				resp *sdom.SendResponse
				err  error
			)
			if sealTo != "" {
				resp, err = c.SendSealed(ctx, args[0], sealTo, []byte(args[1]), send)
			} else {
				resp, err = c.Send(ctx, args[0], args[1], send)
			}
			if err != nil {
				return err
			}
			if resp.Duplicate {
				fmt.Fprintln(cmd.OutOrStdout(), "Duplicate, not stored again")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent: %s\n", resp.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&sealTo, "seal-to", "", "recipient's base64 Ed25519 public key; encrypts the message")
	cmd.Flags().IntVar(&send.TTL, "ttl", 0, "time to live in seconds (60-86400)")
	cmd.Flags().StringVar(&send.IdempotencyKey, "idempotency-key", "", "dedupe token for safe retries")
	return cmd
}

func newReadCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read [agent_id]",
		Short: "Drain a mailbox, opening sealed envelopes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			c := opts.client()
			msgs, err := c.Drain(ctx, firstArg(args))
			if err != nil {
				return err
			}
			for i := range msgs {
				printMessage(cmd.OutOrStdout(), c, &msgs[i])
			}
			return nil
		},
	}
}

func newHasCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "has [agent_id]",
		Short: "Count waiting envelopes without consuming them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			n, err := opts.client().Has(ctx, firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newTakeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "take [agent_id]",
		Short: "Pop the oldest envelope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			c := opts.client()
			msg, err := c.Take(ctx, firstArg(args))
			if err != nil {
				return err
			}
			if msg == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Mailbox empty")
				return nil
			}
			printMessage(cmd.OutOrStdout(), c, msg)
			return nil
		},
	}
}

func newWhoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "who <agent_id>",
		Short: "Show an agent profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := opts.client().GetAgent(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func printMessage(w io.Writer, c *sdom.Client, m *sdom.Message) {
	ts := time.UnixMilli(m.TS).Format("2006-01-02 15:04:05")
	body := string(m.Envelope)
	if pt, err := c.Open(m); err == nil {
		body = string(pt)
	} else {
		var s string
		if json.Unmarshal(m.Envelope, &s) == nil {
			body = s
		}
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", ts, m.From, body)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
