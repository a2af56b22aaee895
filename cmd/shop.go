package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trolleyhq/trolley/internal/demoshop"
	"github.com/trolleyhq/trolley/internal/observability"
)

// newShopCmd creates the `shop` command, which serves the bundled storefront
// on its own. Useful for writing new scenarios against a browser by hand.
func newShopCmd() *cobra.Command {
	shopCmd := &cobra.Command{
		Use:   "shop",
		Short: "Serves the bundled demo storefront until interrupted",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("shop.listen", cmd.Flags().Lookup("listen"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			shop, err := demoshop.New(cfg.Shop, logger)
			if err != nil {
				return err
			}
			if err := shop.Start(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Demo shop serving at %s (Ctrl-C to stop)\n", shop.BaseURL())
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shop.Shutdown(shutdownCtx)
		},
	}

	shopCmd.Flags().StringP("listen", "l", "", "Listen address, e.g. 127.0.0.1:8941. (Overrides config/env)")
	return shopCmd
}
