package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bgdnvk/deploytool/internal/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage deploytool settings",
	Long:  `Create or inspect the settings file ($HOME/.deploytool.yaml).`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize settings file",
	Long:  `Create a default settings file in your home directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			configPath = filepath.Join(home, ".deploytool.yaml")
		}

		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Settings file already exists at %s\n", configPath)
			return nil
		}

		data, err := settings.Default().YAML()
		if err != nil {
			return err
		}
		content := append([]byte("# deploytool settings\n# Every key can also be set as DEPLOYTOOL_<KEY> (dots become underscores).\n"), data...)
		if err := os.WriteFile(configPath, content, 0o600); err != nil {
			return fmt.Errorf("failed to write settings file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Settings file created at %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load(viper.GetViper())
		if err != nil {
			return err
		}
		data, err := s.YAML()
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# from %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
