package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtmarsh/keywarden/crypto"
)

var (
	genpassLength         int
	genpassNoSymbols      bool
	genpassExcludeSimilar bool
)

var genpassCmd = &cobra.Command{
	Use:   "genpass",
	Short: "Generate a random password",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := crypto.DefaultPasswordOptions()
		opts.Length = genpassLength
		opts.Symbols = !genpassNoSymbols
		opts.ExcludeSimilar = genpassExcludeSimilar
		password, err := crypto.GeneratePassword(opts)
		if err != nil {
			return err
		}
		fmt.Println(password)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genpassCmd)
	genpassCmd.Flags().IntVarP(&genpassLength, "length", "l", 16, "Password length")
	genpassCmd.Flags().BoolVar(&genpassNoSymbols, "no-symbols", false, "Exclude symbol characters")
	genpassCmd.Flags().BoolVar(&genpassExcludeSimilar, "exclude-similar", false, "Exclude easily confused characters (il1Lo0O)")
}
