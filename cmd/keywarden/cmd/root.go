package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keywarden",
	Short: "Keywarden is a zero-knowledge password vault server",
	Long: `A password vault where every secret is encrypted client-side semantics:
vault keys are derived from the master password on unlock, held only for a
bounded session window, and never persisted. The server stores ciphertext.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
