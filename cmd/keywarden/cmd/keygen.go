package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtmarsh/keywarden/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key for KEYWARDEN_2FA_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.NewSecretBoxKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
