package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"medpredict/internal/config"
	"medpredict/internal/crypto"
)

var rootCmd = &cobra.Command{
	Use:   "genmasterkey [path]",
	Short: "Generate the master key for the encrypted session store",
	Long: `Writes a fresh 32-byte hex master key with mode 0600. The default
path is ~/.medpredict/master.key. An existing file is never overwritten.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyFile := filepath.Join(config.DefaultDir(), "master.key")
		if len(args) == 1 {
			keyFile = args[0]
		}
		if err := writeMasterKey(keyFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Master key written to %s\n", keyFile)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func writeMasterKey(keyFile string) error {
	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	// O_EXCL makes the existence check and the create a single step.
	f, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if os.IsExist(err) {
		return fmt.Errorf("%s already exists. Refusing to overwrite", keyFile)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", keyFile, err)
	}
	if _, err := f.WriteString(crypto.NewMasterKeyHex() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", keyFile, err)
	}
	return f.Close()
}
