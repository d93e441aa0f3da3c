// Package catalog maintains canonical products derived from line items and
// produces cost estimates from their price history.
package catalog

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/store"
)

// ErrNoPricing is returned when a product has no usable price data.
var ErrNoPricing = eris.New("no pricing data available")

const (
	// DefaultEscalationRate is the yearly price escalation applied to
	// estimates when the caller does not supply one.
	DefaultEscalationRate = 0.03

	maxPriceHistory = 50
	maxPriceSources = 20
)

// Service builds and queries the canonical product catalog.
type Service struct {
	store store.Store
}

// New creates a catalog Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// RebuildResult reports what a catalog rebuild changed.
type RebuildResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Rebuild recomputes every canonical product from the line items. The
// operation is idempotent: running it twice without new data updates the
// same products with the same statistics.
func (s *Service) Rebuild(ctx context.Context, sessionID string) (*RebuildResult, error) {
	items, err := s.store.ListAllLineItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	groups := map[string][]model.LineItem{}
	var names []string
	for _, item := range items {
		if item.ProductName == "" {
			continue
		}
		if _, ok := groups[item.ProductName]; !ok {
			names = append(names, item.ProductName)
		}
		groups[item.ProductName] = append(groups[item.ProductName], item)
	}
	sort.Strings(names)

	result := &RebuildResult{}
	for _, name := range names {
		product := buildProduct(name, groups[name], sessionID)

		// Aliases are operator-curated; a rebuild must not wipe them.
		existing, err := s.store.GetProductByName(ctx, sessionID, name)
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			product.KnownAliases = existing.KnownAliases
			if product.Category == "" {
				product.Category = existing.Category
			}
			if product.Manufacturer == "" {
				product.Manufacturer = existing.Manufacturer
			}
		}

		created, err := s.store.UpsertProduct(ctx, product)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	result.Total = result.Created + result.Updated

	zap.L().Info("catalog rebuilt",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated))
	return result, nil
}

// buildProduct computes catalog statistics for one product. Items arrive
// ordered by document date ascending, which makes the last priced item the
// most recent purchase.
func buildProduct(name string, items []model.LineItem, sessionID string) *model.CanonicalProduct {
	product := &model.CanonicalProduct{
		CanonicalName: name,
		SessionID:     sessionID,
	}

	var prices []float64
	partSeen := map[string]bool{}

	for _, item := range items {
		if product.Category == "" {
			product.Category = item.Category
		}
		if product.Manufacturer == "" {
			product.Manufacturer = item.Manufacturer
		}
		if item.PartNumber != "" && !partSeen[item.PartNumber] {
			partSeen[item.PartNumber] = true
			product.KnownPartNumbers = append(product.KnownPartNumbers, item.PartNumber)
		}
		if item.UnitPrice == nil {
			continue
		}

		price := round2(*item.UnitPrice)
		prices = append(prices, *item.UnitPrice)
		product.LastKnownPrice = &price
		product.LastPriceDate = item.DocumentDate
		if len(product.PriceHistory) < maxPriceHistory {
			product.PriceHistory = append(product.PriceHistory, model.PricePoint{
				Price:  price,
				Date:   item.DocumentDate,
				Vendor: item.VendorName,
			})
		}
	}

	if len(prices) > 0 {
		sum, minP, maxP := 0.0, prices[0], prices[0]
		for _, p := range prices {
			sum += p
			minP = math.Min(minP, p)
			maxP = math.Max(maxP, p)
		}
		avg := round2(sum / float64(len(prices)))
		minP, maxP = round2(minP), round2(maxP)
		product.AvgPrice = &avg
		product.MinPrice = &minP
		product.MaxPrice = &maxP
	}
	return product
}

// PriceSource is one observed price backing an estimate.
type PriceSource struct {
	Price  *float64 `json:"price"`
	Date   string   `json:"date,omitempty"`
	Vendor string   `json:"vendor,omitempty"`
}

// Estimate is an independent government cost estimate for a product.
type Estimate struct {
	ProductName        string        `json:"product_name"`
	Category           string        `json:"category,omitempty"`
	Manufacturer       string        `json:"manufacturer,omitempty"`
	Quantity           float64       `json:"quantity"`
	AvgUnitPrice       float64       `json:"avg_unit_price"`
	MinPrice           *float64      `json:"min_price"`
	MaxPrice           *float64      `json:"max_price"`
	EscalationRate     float64       `json:"escalation_rate"`
	EstimatedUnitPrice float64       `json:"estimated_unit_price"`
	EstimatedTotal     float64       `json:"estimated_total"`
	PriceSources       []PriceSource `json:"price_sources"`
	DataPoints         int           `json:"data_points"`
}

// GenerateEstimate prices a future buy of the product. Quantity must be
// positive and escalation non-negative; validation happens at the API
// boundary. Returns ErrNoPricing when the catalog has no prices to work from.
func (s *Service) GenerateEstimate(ctx context.Context, sessionID, productID string, quantity, escalationRate float64) (*Estimate, error) {
	product, err := s.store.GetProduct(ctx, sessionID, productID)
	if err != nil {
		return nil, err
	}

	avgPrice := product.AvgPrice
	if avgPrice == nil {
		avgPrice = product.LastKnownPrice
	}
	if avgPrice == nil {
		return nil, eris.Wrapf(ErrNoPricing, "product %q", product.CanonicalName)
	}

	estimatedUnit := round2(*avgPrice * (1 + escalationRate))
	estimatedTotal := round2(estimatedUnit * quantity)

	recent, err := s.store.ListLineItemsByProduct(ctx, sessionID, product.CanonicalName, maxPriceSources)
	if err != nil {
		return nil, err
	}
	sources := []PriceSource{}
	for _, item := range recent {
		if item.UnitPrice == nil {
			continue
		}
		price := round2(*item.UnitPrice)
		sources = append(sources, PriceSource{
			Price:  &price,
			Date:   item.DocumentDate,
			Vendor: item.VendorName,
		})
	}

	return &Estimate{
		ProductName:        product.CanonicalName,
		Category:           product.Category,
		Manufacturer:       product.Manufacturer,
		Quantity:           quantity,
		AvgUnitPrice:       round2(*avgPrice),
		MinPrice:           product.MinPrice,
		MaxPrice:           product.MaxPrice,
		EscalationRate:     escalationRate,
		EstimatedUnitPrice: estimatedUnit,
		EstimatedTotal:     estimatedTotal,
		PriceSources:       sources,
		DataPoints:         len(sources),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
