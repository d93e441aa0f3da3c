package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/model"
)

var rebuildSession string

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-catalog",
	Short: "Recompute the canonical product catalog from line items",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Catalog.Rebuild(cmd.Context(), rebuildSession)
		if err != nil {
			return eris.Wrap(err, "rebuild catalog")
		}

		zap.L().Info("catalog rebuilt",
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("total", result.Total),
		)
		return nil
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildSession, "session", model.DefaultSessionID, "session partition")
	rootCmd.AddCommand(rebuildCmd)
}
