package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookflow/hookflow/internal/secrets"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential master key",
	Long: `Generate a random master key for sealing connection credentials.

Set the result as secrets.master_key in hookflow.yaml or export it:
  export HOOKFLOW_SECRETS_MASTER_KEY=<key>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			return fmt.Errorf("generating master key: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
