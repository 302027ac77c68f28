package cmd

import (
	"fmt"

	internalApp "github.com/haierkeys/schedule-note-sync/internal/app"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"

	"github.com/spf13/cobra"
)

func init() {
	var config, deviceID string

	tokenCmd := &cobra.Command{
		Use:   "token --device-id id",
		Short: "Issue a device token signed with the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigFile(config)
			if err != nil {
				return err
			}
			cfg, _, err := internalApp.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if deviceID == "" {
				deviceID = cfg.DeviceID()
			}
			tm := pkgapp.NewTokenManager(pkgapp.TokenConfig{
				SecretKey: cfg.Security.DeviceTokenKey,
				Expiry:    cfg.GetTokenExpiry(),
			})
			token, err := tm.Generate(deviceID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVarP(&config, "config", "c", "", "config file")
	tokenCmd.Flags().StringVar(&deviceID, "device-id", "", "device id, defaults to this machine's device id")

	rootCmd.AddCommand(tokenCmd)
}
