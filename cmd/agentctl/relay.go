package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dumpkod/sdominanta/clients/go/sdom"
)

func newRelayCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Talk to the topic relay",
	}
	cmd.AddCommand(
		newRelayListenCommand(opts),
		newRelayPublishCommand(opts),
		newRelayAnnounceCommand(opts),
		newRelayPeersCommand(opts),
	)
	return cmd
}

func (o *options) dialRelay(cmd *cobra.Command) (*sdom.RelayClient, error) {
	ctx, cancel := o.context(cmd)
	defer cancel()
	return sdom.DialRelay(ctx, o.relayURL, nil)
}

// rawOrString sends valid JSON as-is and anything else as a JSON string.
func rawOrString(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func newRelayListenCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <topic>...",
		Short: "Subscribe and print frames until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := opts.dialRelay(cmd)
			if err != nil {
				return err
			}
			defer rc.Close()

			for _, topic := range args {
				if err := rc.Subscribe(topic); err != nil {
					return err
				}
			}
			for {
				f, err := rc.Next()
				if err != nil {
					return err
				}
				switch f.Type {
				case "message":
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", f.Topic, f.Data)
				case "error":
					fmt.Fprintf(cmd.ErrOrStderr(), "relay error: %s\n", f.Error)
				}
			}
		},
	}
}

func newRelayPublishCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <topic> <data>",
		Short: "Publish data to a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := opts.dialRelay(cmd)
			if err != nil {
				return err
			}
			defer rc.Close()
			return rc.Publish(args[0], rawOrString(args[1]))
		},
	}
}

func newRelayAnnounceCommand(opts *options) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "announce <peer_id>",
		Short: "Announce a peer id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := opts.dialRelay(cmd)
			if err != nil {
				return err
			}
			defer rc.Close()

			var payload any
			if data != "" {
				payload = rawOrString(data)
			}
			return rc.Announce(args[0], payload)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "announcement payload")
	return cmd
}

func newRelayPeersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List announced peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.dialRelay(cmd)
			if err != nil {
				return err
			}
			defer rc.Close()

			if err := rc.RequestPeers(); err != nil {
				return err
			}
			for {
				f, err := rc.Next()
				if err != nil {
					return err
				}
				if f.Type != "peers_list" {
					continue
				}
				for _, p := range f.Peers {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}
		},
	}
}
