package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AGENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate a BasicAgent contract from the terminal",
		Long:          "agentctl reads agent status and action history from the chain and dispatches actions through an external wallet bridge.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to the JSON config file (defaults to $AGENT_CONFIG or configs/agent.json)")
	flags.String("contract", "", "agent contract address, overrides agent.address")
	flags.String("wallet-url", "", "wallet bridge JSON-RPC URL, overrides wallet.bridge_url")
	flags.Bool("json", false, "print machine readable JSON")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(
		newStatusCmd(v),
		newEventsCmd(v),
		newOwnerCmd(v),
		newConnectCmd(v),
		newTriggerCmd(v),
		newJournalCmd(v),
		newWatchCmd(v),
		newNetworkCmd(v),
	)
	return rootCmd
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
