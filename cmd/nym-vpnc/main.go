// Command nym-vpnc is the thin CLI client: it dials nym-vpnd over the
// platform IPC transport and prints the result of a single RPC call.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nymtech/nym-vpn-core-go/internal/dispatcher/rpc"
)

// Build identity, injected via -ldflags the way cmd/nym-vpnd is.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "nym-vpnc",
		Short:         "Control nym-vpnd, the Nym VPN daemon",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newConnectCmd())
	root.AddCommand(newDisconnectCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newGatewaysCmd())
	root.AddCommand(newAccountCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nym-vpnc: %v\n", err)
		os.Exit(1)
	}
}

// dial opens a connection to the daemon and returns a typed client plus
// a closer; callers defer the closer.
func dial(ctx context.Context) (*rpc.Client, func(), error) {
	client, cc, err := rpc.DialDaemon(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nym-vpnd: %w", err)
	}
	return client, func() { cc.Close() }, nil
}

func newConnectCmd() *cobra.Command {
	var (
		tunnelType      string
		credentialsMode bool
		entryKind       string
		entryIdentity   string
		entryISOCode    string
		exitKind        string
		exitIdentity    string
		exitISOCode     string
		exitRecipient   string
		dnsServers      []string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.Connect(ctx, &rpc.ConnectRequest{
				Settings: rpc.SettingsWire{
					TunnelType:      tunnelType,
					CredentialsMode: credentialsMode,
					EntryKind:       entryKind,
					EntryIdentity:   entryIdentity,
					EntryISOCode:    entryISOCode,
					ExitKind:        exitKind,
					ExitIdentity:    exitIdentity,
					ExitISOCode:     exitISOCode,
					ExitRecipient:   exitRecipient,
					DNSServers:      dnsServers,
				},
			})
			if err != nil {
				return err
			}

			if reply.Outcome != "Success" {
				return fmt.Errorf("%s: %s", reply.Kind, reply.Detail)
			}
			fmt.Println("connected")
			return nil
		},
	}

	cmd.Flags().StringVar(&tunnelType, "tunnel-type", "mixnet", "mixnet or wireguard")
	cmd.Flags().BoolVar(&credentialsMode, "credentials-mode", false, "require a bandwidth credential before connecting")
	cmd.Flags().StringVar(&entryKind, "entry-kind", "random_low_latency", "gateway | location | random_low_latency | random")
	cmd.Flags().StringVar(&entryIdentity, "entry-identity", "", "entry gateway identity key")
	cmd.Flags().StringVar(&entryISOCode, "entry-country", "", "entry gateway two-letter ISO country code")
	cmd.Flags().StringVar(&exitKind, "exit-kind", "random", "gateway | location | address | random")
	cmd.Flags().StringVar(&exitIdentity, "exit-identity", "", "exit gateway identity key")
	cmd.Flags().StringVar(&exitISOCode, "exit-country", "", "exit gateway two-letter ISO country code")
	cmd.Flags().StringVar(&exitRecipient, "exit-recipient", "", "exit recipient address (mixnet client id.enc.gateway)")
	cmd.Flags().StringSliceVar(&dnsServers, "dns", nil, "override DNS servers pushed into the tunnel")

	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.Disconnect(ctx, &rpc.DisconnectRequest{})
			if err != nil {
				return err
			}
			fmt.Println(reply.Outcome)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current tunnel state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.Status(ctx, &rpc.StatusRequest{})
			if err != nil {
				return err
			}

			fmt.Printf("phase:    %s\n", reply.Phase)
			if reply.EntryIdentity != "" {
				fmt.Printf("entry:    %s\n", reply.EntryIdentity)
			}
			if reply.ExitIdentity != "" {
				fmt.Printf("exit:     %s\n", reply.ExitIdentity)
			}
			if reply.TunAddrV4 != "" {
				fmt.Printf("tun ipv4: %s\n", reply.TunAddrV4)
			}
			if reply.TunAddrV6 != "" {
				fmt.Printf("tun ipv6: %s\n", reply.TunAddrV6)
			}
			if !reply.Since.IsZero() {
				fmt.Printf("since:    %s\n", reply.Since.Format(time.RFC3339))
			}
			if reply.ErrKind != "" {
				fmt.Printf("error:    %s %v\n", reply.ErrKind, reply.ErrData)
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show daemon build and network information",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.Info(ctx, &rpc.InfoRequest{})
			if err != nil {
				return err
			}

			fmt.Printf("version:     %s\n", reply.Version)
			fmt.Printf("built:       %s\n", reply.BuildTS)
			fmt.Printf("platform:    %s (%s)\n", reply.Platform, reply.Triple)
			fmt.Printf("commit:      %s\n", reply.GitCommit)
			fmt.Printf("vpn api url: %s\n", reply.VpnApiURL)
			if reply.Chain != "" {
				fmt.Printf("chain:       %s\n", reply.Chain)
			}
			return nil
		},
	}
}

func newGatewaysCmd() *cobra.Command {
	var exit bool

	cmd := &cobra.Command{
		Use:   "gateways",
		Short: "List entry or exit gateways from the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			req := &rpc.ListGatewaysRequest{TunnelType: cmd.Flag("tunnel-type").Value.String()}

			var reply *rpc.ListGatewaysReply
			if exit {
				reply, err = client.ListExitGateways(ctx, req)
			} else {
				reply, err = client.ListEntryGateways(ctx, req)
			}
			if err != nil {
				return err
			}
			if reply.ErrKind != "" {
				return fmt.Errorf("%s", reply.ErrKind)
			}

			for _, gw := range reply.Gateways {
				fmt.Printf("%-44s %-3s  mixnet=%-3d wg=%-3d  %s\n",
					gw.IdentityKey, gw.CountryCode, gw.MixnetPerformance, gw.WireguardPerformance, gw.Host)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exit, "exit", false, "list exit gateways instead of entry gateways")
	cmd.Flags().String("tunnel-type", "mixnet", "mixnet or wireguard")

	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the stored account mnemonic",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "store <mnemonic words>",
		Short: "Store an account mnemonic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			words := args[0]
			for _, a := range args[1:] {
				words += " " + a
			}

			reply, err := client.StoreAccountMnemonic(ctx, &rpc.StoreAccountMnemonicRequest{Words: words})
			if err != nil {
				return err
			}
			if reply.ErrKind != "" {
				return fmt.Errorf("%s", reply.ErrKind)
			}
			fmt.Println("mnemonic stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Remove the stored account mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.RemoveAccountMnemonic(ctx, &rpc.RemoveAccountMnemonicRequest{})
			if err != nil {
				return err
			}
			if reply.ErrKind != "" {
				return fmt.Errorf("%s", reply.ErrKind)
			}
			if reply.WasStored {
				fmt.Println("mnemonic removed")
			} else {
				fmt.Println("no mnemonic was stored")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show the account/device/subscription summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.GetAccountSummary(ctx, &rpc.GetAccountSummaryRequest{})
			if err != nil {
				return err
			}

			fmt.Printf("mnemonic stored: %v\n", reply.MnemonicStored)
			fmt.Printf("account:         %s\n", reply.Account)
			fmt.Printf("subscription:    %s\n", reply.Subscription)
			fmt.Printf("device:          %s\n", reply.Device)
			fmt.Printf("synced:          %v\n", reply.Synced)
			fmt.Printf("readiness:       %s\n", reply.Readiness)
			return nil
		},
	})

	var waitTimeout float64
	waitCmd := &cobra.Command{
		Use:   "wait-ready",
		Short: "Block until the account is ready to connect, or the timeout elapses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(waitTimeout*float64(time.Second))+5*time.Second)
			defer cancel()

			client, closeFn, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := client.WaitForAccountReadyToConnect(ctx, &rpc.WaitForAccountReadyToConnectRequest{TimeoutSeconds: waitTimeout})
			if err != nil {
				return err
			}
			if reply.ErrKind != "" {
				return fmt.Errorf("%s", reply.ErrKind)
			}
			fmt.Println(reply.Readiness)
			return nil
		},
	}
	waitCmd.Flags().Float64Var(&waitTimeout, "timeout", 30, "seconds to wait before giving up")
	cmd.AddCommand(waitCmd)

	return cmd
}
