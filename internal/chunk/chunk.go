// Package chunk renders document content into retrieval-sized pieces.
package chunk

import (
	"fmt"
	"strings"

	"github.com/sells-group/procdoc/internal/model"
)

const (
	// DefaultSize is the target chunk size in characters for the paragraph
	// splitter.
	DefaultSize = 500
	// DefaultOverlap is the number of trailing words carried into the next
	// chunk.
	DefaultOverlap = 50
)

// SplitParagraphs chunks text along paragraph boundaries. Paragraphs are
// separated by blank lines; they accumulate until the chunk would exceed
// size characters, and each new chunk is seeded with the last overlap words
// of the previous one so context survives the boundary.
func SplitParagraphs(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current string

	for _, p := range paragraphs {
		if current == "" {
			current = p
			continue
		}
		if len(current)+len(p)+2 > size {
			chunks = append(chunks, current)
			current = seedOverlap(current, overlap, p)
			continue
		}
		current += "\n\n" + p
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// seedOverlap prefixes next with the last n words of prev.
func seedOverlap(prev string, n int, next string) string {
	if n == 0 {
		return next
	}
	words := strings.Fields(prev)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ") + "\n\n" + next
}

// LineItemChunks renders one searchable chunk per line item, each carrying
// the owning document's context so structured fields (part numbers, prices,
// vendors) are reachable through plain text search.
func LineItemChunks(doc *model.Document, items []model.LineItem) []string {
	if len(items) == 0 {
		return nil
	}

	vendor := doc.VendorName
	if vendor == "" {
		vendor = "Unknown Vendor"
	}

	chunks := make([]string, 0, len(items))
	for _, item := range items {
		parts := []string{
			"Vendor: " + vendor,
			fmt.Sprintf("Document: %s (%s)", doc.DocumentNumber, doc.DocumentType),
			"Date: " + doc.DocumentDate,
		}
		if item.ProductName != "" {
			parts = append(parts, "Product: "+item.ProductName)
		}
		if item.PartNumber != "" {
			parts = append(parts, "Part Number: "+item.PartNumber)
		}
		if item.Manufacturer != "" {
			parts = append(parts, "Manufacturer: "+item.Manufacturer)
		}
		if item.Quantity != nil {
			uoi := item.UnitOfIssue
			if uoi == "" {
				uoi = "each"
			}
			parts = append(parts, fmt.Sprintf("Quantity: %g %s", *item.Quantity, uoi))
		}
		if item.UnitPrice != nil {
			parts = append(parts, "Unit Price: "+dollars(*item.UnitPrice))
		}
		if item.ExtendedPrice != nil {
			parts = append(parts, "Extended Price: "+dollars(*item.ExtendedPrice))
		}
		if item.Category != "" {
			parts = append(parts, "Category: "+item.Category)
		}
		if item.LaborCategory != "" {
			parts = append(parts, "Labor Category: "+item.LaborCategory)
		}
		chunks = append(chunks, strings.Join(parts, "\n"))
	}
	return chunks
}

// dollars formats an amount as $1,234.56.
func dollars(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.Index(s, ".")
	intPart := s[:dot]
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	for i := len(intPart) - 3; i > 0; i -= 3 {
		intPart = intPart[:i] + "," + intPart[i:]
	}
	if neg {
		intPart = "-" + intPart
	}
	return "$" + intPart + s[dot:]
}
