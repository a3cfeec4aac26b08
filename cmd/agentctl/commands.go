package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"BasicAgent-Console/internal/agent"
	"BasicAgent-Console/internal/config"
	"BasicAgent-Console/internal/console"
	"BasicAgent-Console/internal/notify"
	"BasicAgent-Console/internal/wallet"
)

func agentPage(limit int) agent.PageRequest {
	if limit <= 0 {
		limit = agent.DefaultPageLimit
	}
	return agent.PageRequest{Limit: limit}
}

func dispatcherOptions(cfg config.AgentConfig) []agent.DispatcherOption {
	return []agent.DispatcherOption{
		agent.WithMaxPayloadLength(cfg.PayloadLimit()),
		agent.WithReceiptPollInterval(cfg.ReceiptPollInterval()),
	}
}

// withApp 构造 app 并在命令结束后释放资源。
func withApp(v *viper.Viper, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), v)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show owner and last action of the agent contract",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			endpoint, err := a.registry.Endpoint()
			if err != nil {
				return err
			}
			status, err := agent.NewReader(endpoint).ReadStatus(cmd.Context(), a.cfg.Agent.Address)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, a.cfg.Agent.Address, status)
			return nil
		}),
	}
}

func newEventsCmd(v *viper.Viper) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent AgentActionTriggered events, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			endpoint, err := a.registry.Endpoint()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = agentPage(a.cfg.Agent.PageLimit).Limit
			}
			paginator := agent.NewPaginator(endpoint, agent.WithTxExplorer(a.registry.Required()))
			page, err := paginator.ListEvents(cmd.Context(), a.cfg.Agent.Address, agent.PageRequest{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return writeJSON(cmd, page)
			}
			printEvents(cmd, page)
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", agent.DefaultPageLimit, "number of events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of newest events to skip")
	return cmd
}

func newOwnerCmd(v *viper.Viper) *cobra.Command {
	var candidate string
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Show the contract owner, optionally checking a wallet address",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			endpoint, err := a.registry.Endpoint()
			if err != nil {
				return err
			}
			owner, err := agent.NewReader(endpoint).Owner(cmd.Context(), a.cfg.Agent.Address)
			if err != nil {
				return err
			}
			result := struct {
				Owner   string `json:"owner"`
				Wallet  string `json:"walletAddress,omitempty"`
				IsOwner *bool  `json:"isOwner,omitempty"`
			}{Owner: owner, Wallet: candidate}
			if candidate != "" {
				ok, err := agent.IsAuthorized(candidate, owner)
				if err != nil {
					return err
				}
				result.IsOwner = &ok
			}
			if v.GetBool("json") {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "owner: %s\n", owner)
			if result.IsOwner != nil {
				fmt.Fprintf(out, "wallet %s is owner: %t\n", candidate, *result.IsOwner)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&candidate, "wallet", "", "wallet address to compare against the owner")
	return cmd
}

func newConnectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet bridge, align its network and load the console",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			c, err := a.console(cmd.Context())
			if err != nil {
				return err
			}
			session, snapshot, err := c.Connect(cmd.Context())
			if err != nil {
				return fmt.Errorf("wallet state %s: %w", c.State(), err)
			}
			if v.GetBool("json") {
				return writeJSON(cmd, struct {
					State    wallet.State     `json:"state"`
					Session  wallet.Session   `json:"session"`
					Snapshot console.Snapshot `json:"snapshot"`
				}{c.State(), session, snapshot})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", c.State())
			printSession(cmd, session, snapshot)
			printStatus(cmd, c.Contract(), snapshot.Status)
			printEvents(cmd, snapshot.Events)
			return nil
		}),
	}
}

func newTriggerCmd(v *viper.Viper) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "trigger <data>",
		Short: "Dispatch triggerAgentAction through the wallet bridge",
		Long:  "Dispatch triggerAgentAction through the wallet bridge. With --kind the payload is sent as <kind>:<data>; supported kinds: check-balance, transfer, stake, custom.",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			payload := args[0]
			if kind != "" {
				formatted, err := agent.FormatAction(agent.ActionKind(kind), args[0])
				if err != nil {
					return err
				}
				payload = formatted
			}

			c, err := a.console(cmd.Context())
			if err != nil {
				return err
			}
			session, snapshot, err := c.Connect(cmd.Context())
			if err != nil {
				return err
			}
			result, next, err := c.Trigger(cmd.Context(), session, snapshot, payload)
			if result.TxHash != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "transaction: %s (block %d, gas %d)\n", result.TxHash, result.BlockNumber, result.GasUsed)
				if link := a.registry.Required().TxURL(result.TxHash); link != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "explorer: %s\n", link)
				}
			}
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return writeJSON(cmd, struct {
					Result   agent.DispatchResult `json:"result"`
					Snapshot console.Snapshot     `json:"snapshot"`
				}{result, next})
			}
			printStatus(cmd, c.Contract(), next.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "action kind used to prefix the payload")
	return cmd
}

func newJournalCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent dispatch attempts recorded by this operator",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			journal, err := a.journal(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := journal.ListLatest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no dispatches recorded")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-22s %s  %q", time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339), e.Outcome, e.Wallet, e.Payload)
				if e.TxHash != "" {
					fmt.Fprintf(out, "  %s", e.TxHash)
				}
				fmt.Fprintln(out)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func newWatchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print dispatch notices published by other operators",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			switch a.cfg.Notify.Driver {
			case "none":
				return errors.New("notify.driver 为 none，无法订阅通知")
			case "memory":
				return errors.New("notify.driver 为 memory，只能在同一进程内投递，请改用 redis 或 rabbitmq")
			}
			broker, err := a.broker(cmd.Context())
			if err != nil {
				return err
			}
			err = broker.Consume(cmd.Context(), func(_ context.Context, n notify.Notice) error {
				if v.GetBool("json") {
					return writeJSON(cmd, n)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %q  %s (block %d)\n",
					time.Unix(n.CreatedAt, 0).UTC().Format(time.RFC3339), n.Wallet, n.Payload, n.TxHash, n.BlockNumber)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
}

func newNetworkCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Print the wallet_addEthereumChain parameters of the required chain",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, _ []string) error {
			chain := a.registry.Required()
			if v.GetBool("json") {
				return writeJSON(cmd, chain.AddChainParams())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chain: %s\n", chain.Name)
			fmt.Fprintf(out, "chain id: %d (%s)\n", chain.ChainID, chain.HexChainID())
			fmt.Fprintf(out, "rpc: %s\n", chain.RPCURL)
			if chain.ExplorerURL != "" {
				fmt.Fprintf(out, "explorer: %s\n", chain.ExplorerURL)
			}
			return nil
		}),
	}
}

func printStatus(cmd *cobra.Command, contract string, status agent.AgentStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "contract: %s\n", contract)
	fmt.Fprintf(out, "owner: %s\n", status.Owner)
	if status.LastActionTimestamp == 0 {
		fmt.Fprintln(out, "last action: none")
		return
	}
	at := time.Unix(int64(status.LastActionTimestamp), 0).UTC()
	fmt.Fprintf(out, "last action: %q at %s\n", status.LastActionData, at.Format(time.RFC3339))
}

func printEvents(cmd *cobra.Command, page agent.PageResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "events in lookback window: %d\n", page.TotalScanned)
	for _, e := range page.Events {
		at := time.Unix(int64(e.Timestamp), 0).UTC()
		fmt.Fprintf(out, "#%d  %s  %q  %s\n", e.BlockNumber, at.Format(time.RFC3339), e.Data, e.TxHash)
	}
}

func printSession(cmd *cobra.Command, session wallet.Session, snapshot console.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wallet: %s (chain %d)\n", session.Address.Hex(), session.ChainID)
	fmt.Fprintf(out, "owner access: %t\n", snapshot.IsOwner)
}
