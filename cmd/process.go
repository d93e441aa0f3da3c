package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/model"
)

var processSession string

var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Run the extraction and mapping pipeline for one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Anthropic.Key == "" {
			return eris.New("PROCDOC_ANTHROPIC_KEY is not set")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Processor.Process(cmd.Context(), processSession, args[0])
		if err != nil {
			return eris.Wrap(err, "process document")
		}

		zap.L().Info("document processed",
			zap.String("document_id", summary.Document.ID),
			zap.String("status", string(summary.Document.ProcessingStatus)),
			zap.String("document_type", summary.Document.DocumentType),
			zap.String("vendor", summary.Document.VendorName),
			zap.Int("line_items", summary.LineItemsCreated),
			zap.Int("chunks", summary.ChunksCreated),
		)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processSession, "session", model.DefaultSessionID, "session partition")
	rootCmd.AddCommand(processCmd)
}
