package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/procdoc/internal/model"
)

var (
	seedFile    string
	seedSession string
)

// seedDocument mirrors the YAML shape of one demo document and its rows.
type seedDocument struct {
	OriginalFilename string   `yaml:"original_filename"`
	FileFormat       string   `yaml:"file_format"`
	DocumentType     string   `yaml:"document_type"`
	VendorName       string   `yaml:"vendor_name"`
	DocumentNumber   string   `yaml:"document_number"`
	DocumentDate     string   `yaml:"document_date"`
	ContractNumber   string   `yaml:"contract_number"`
	TotalAmount      *float64 `yaml:"total_amount"`

	LineItems []seedLineItem `yaml:"line_items"`
}

type seedLineItem struct {
	LineNumber    *int     `yaml:"line_number"`
	CLIN          string   `yaml:"clin"`
	PartNumber    string   `yaml:"part_number"`
	Manufacturer  string   `yaml:"manufacturer"`
	ProductName   string   `yaml:"product_name"`
	Description   string   `yaml:"description"`
	Category      string   `yaml:"category"`
	SubCategory   string   `yaml:"sub_category"`
	Quantity      *float64 `yaml:"quantity"`
	UnitOfIssue   string   `yaml:"unit_of_issue"`
	UnitPrice     *float64 `yaml:"unit_price"`
	ExtendedPrice *float64 `yaml:"extended_price"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo documents and line items from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrap(err, "read seed file")
		}

		var seed struct {
			Documents []seedDocument `yaml:"documents"`
		}
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrap(err, "parse seed file")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		itemCount := 0
		for _, sd := range seed.Documents {
			doc := &model.Document{
				OriginalFilename: sd.OriginalFilename,
				FileFormat:       sd.FileFormat,
				DocumentType:     sd.DocumentType,
				VendorName:       sd.VendorName,
				DocumentNumber:   sd.DocumentNumber,
				DocumentDate:     sd.DocumentDate,
				ContractNumber:   sd.ContractNumber,
				TotalAmount:      sd.TotalAmount,
				ProcessingStatus: model.StatusComplete,
				SessionID:        seedSession,
			}
			if err := env.Store.CreateDocument(ctx, doc); err != nil {
				return eris.Wrapf(err, "seed document %q", sd.OriginalFilename)
			}

			items := make([]model.LineItem, 0, len(sd.LineItems))
			for _, si := range sd.LineItems {
				items = append(items, model.LineItem{
					DocumentID:         doc.ID,
					LineNumber:         si.LineNumber,
					CLIN:               si.CLIN,
					PartNumber:         si.PartNumber,
					Manufacturer:       si.Manufacturer,
					ProductName:        si.ProductName,
					ProductDescription: si.Description,
					Category:           si.Category,
					SubCategory:        si.SubCategory,
					Quantity:           si.Quantity,
					UnitOfIssue:        si.UnitOfIssue,
					UnitPrice:          si.UnitPrice,
					ExtendedPrice:      si.ExtendedPrice,
					SessionID:          seedSession,
				})
			}
			if err := env.Store.InsertLineItems(ctx, items); err != nil {
				return eris.Wrapf(err, "seed line items for %q", sd.OriginalFilename)
			}
			itemCount += len(items)
		}

		result, err := env.Catalog.Rebuild(ctx, seedSession)
		if err != nil {
			return eris.Wrap(err, "rebuild catalog")
		}

		zap.L().Info("seed complete",
			zap.Int("documents", len(seed.Documents)),
			zap.Int("line_items", itemCount),
			zap.Int("products", result.Total),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "seed.yaml", "seed data file")
	seedCmd.Flags().StringVar(&seedSession, "session", model.DefaultSessionID, "session partition")
	rootCmd.AddCommand(seedCmd)
}
