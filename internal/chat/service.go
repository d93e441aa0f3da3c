// Package chat answers questions about stored procurement data using
// hybrid lexical retrieval and AI synthesis.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/resilience"
	"github.com/sells-group/procdoc/internal/store"
	"github.com/sells-group/procdoc/pkg/anthropic"
)

const systemPrompt = `You are a procurement document analyst assistant. You help users find information about their procurement documents, purchase orders, invoices, vendor quotes, and line items.

You have access to a database of procurement documents with extracted line items. When answering questions:
1. Be specific and cite source documents (document number, vendor, date)
2. Include prices, quantities, and other relevant numbers
3. If you're not sure about something, say so
4. Format currency values with $ and commas
5. Keep answers concise but complete

When search results are provided, base your answer ONLY on those results. Do not make up information.`

const queryPrompt = `Based on the user's question, I searched the procurement database and found these results:

%s

User question: %s

Please answer the question based on the search results above. Cite specific documents and line items. If the results don't contain enough information to answer, say so.`

const (
	// QueryTypeHybrid marks answers synthesized from retrieval results.
	QueryTypeHybrid = "hybrid"
	// QueryTypeSearchOnly marks responses without AI synthesis.
	QueryTypeSearchOnly = "search_only"

	maxHistoryMessages = 6
	maxContextItems    = 15
	maxContextChunks   = 10
	synthesisTokens    = 1024
)

// HistoryMessage is one prior turn of the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source cites a document that contributed to an answer.
type Source struct {
	DocumentID       string `json:"document_id"`
	DocumentNumber   string `json:"document_number,omitempty"`
	VendorName       string `json:"vendor_name,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
}

// Response is the outcome of one chat query.
type Response struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	QueryType string   `json:"query_type"`
}

// Service runs hybrid retrieval over line items and document chunks, then
// synthesizes an answer. Without a client it degrades to search-only mode.
type Service struct {
	store         store.Store
	client        anthropic.Client
	model         string
	lineItemLimit int
	chunkLimit    int
}

// Options configures a chat Service.
type Options struct {
	Model         string
	LineItemLimit int
	ChunkLimit    int
}

// New creates a Service. A nil client enables search-only mode.
func New(st store.Store, client anthropic.Client, opts Options) *Service {
	if opts.LineItemLimit <= 0 {
		opts.LineItemLimit = 20
	}
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = 10
	}
	return &Service{
		store:         st,
		client:        client,
		model:         opts.Model,
		lineItemLimit: opts.LineItemLimit,
		chunkLimit:    opts.ChunkLimit,
	}
}

// Query answers a question about the stored documents.
func (s *Service) Query(ctx context.Context, sessionID, question string, history []HistoryMessage) (*Response, error) {
	terms := searchTerms(question)

	var items []model.LineItem
	var chunks []model.DocumentChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.store.SearchLineItems(gctx, sessionID, terms, s.lineItemLimit)
		return err
	})
	g.Go(func() error {
		var err error
		chunks, err = s.store.SearchChunks(gctx, sessionID, terms, s.chunkLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources := collectSources(items, chunks)

	if s.client == nil {
		return &Response{
			Answer: fmt.Sprintf("Found %d line items and %d document passages matching your query. (AI synthesis requires an Anthropic API key)",
				len(items), len(chunks)),
			Sources:   sources,
			QueryType: QueryTypeSearchOnly,
		}, nil
	}

	answer := s.synthesize(ctx, question, buildContext(items, chunks), history)
	return &Response{
		Answer:    answer,
		Sources:   sources,
		QueryType: QueryTypeHybrid,
	}, nil
}

// searchTerms splits a question into terms, dropping short words.
func searchTerms(question string) []string {
	var terms []string
	for _, t := range strings.Fields(question) {
		t = strings.Trim(t, `.,;:!?"'()`)
		if len(t) > 2 {
			terms = append(terms, t)
		}
	}
	return terms
}

func buildContext(items []model.LineItem, chunks []model.DocumentChunk) string {
	var parts []string

	if len(items) > 0 {
		parts = append(parts, "=== LINE ITEM SEARCH RESULTS ===")
		for i, item := range items {
			if i == maxContextItems {
				break
			}
			parts = append(parts, formatItem(item))
		}
	}

	if len(chunks) > 0 {
		parts = append(parts, "\n=== DOCUMENT TEXT SEARCH RESULTS ===")
		for i, c := range chunks {
			if i == maxContextChunks {
				break
			}
			label := c.DocumentNumber
			if label == "" {
				label = c.OriginalFilename
			}
			if label == "" {
				label = "Unknown"
			}
			parts = append(parts, fmt.Sprintf("[%s] %s", label, truncate(c.Content, 300)))
		}
	}

	if len(parts) == 0 {
		return "No results found matching the query."
	}
	return strings.Join(parts, "\n")
}

func formatItem(item model.LineItem) string {
	var sb strings.Builder
	name := item.ProductName
	if name == "" {
		name = "N/A"
	}
	sb.WriteString("- " + name)
	if item.PartNumber != "" {
		fmt.Fprintf(&sb, " (Part: %s)", item.PartNumber)
	}
	if item.Manufacturer != "" {
		fmt.Fprintf(&sb, " by %s", item.Manufacturer)
	}
	if item.Quantity != nil && item.UnitPrice != nil {
		fmt.Fprintf(&sb, " | Qty: %g @ %s", *item.Quantity, dollars(*item.UnitPrice))
	}
	if item.ExtendedPrice != nil {
		fmt.Fprintf(&sb, " = %s", dollars(*item.ExtendedPrice))
	}
	fmt.Fprintf(&sb, " | Vendor: %s", orNA(item.VendorName))
	fmt.Fprintf(&sb, " | Doc: %s (%s)", orNA(item.DocumentNumber), item.DocumentType)
	fmt.Fprintf(&sb, " | Date: %s", orNA(item.DocumentDate))
	return sb.String()
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

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// collectSources dedupes contributing documents, first seen wins. Line item
// matches come before chunk matches.
func collectSources(items []model.LineItem, chunks []model.DocumentChunk) []Source {
	seen := map[string]bool{}
	sources := []Source{}

	for _, item := range items {
		if item.DocumentID == "" || seen[item.DocumentID] {
			continue
		}
		seen[item.DocumentID] = true
		sources = append(sources, Source{
			DocumentID:       item.DocumentID,
			DocumentNumber:   item.DocumentNumber,
			VendorName:       item.VendorName,
			OriginalFilename: item.OriginalFilename,
		})
	}
	for _, c := range chunks {
		if c.DocumentID == "" || seen[c.DocumentID] {
			continue
		}
		seen[c.DocumentID] = true
		sources = append(sources, Source{
			DocumentID:       c.DocumentID,
			DocumentNumber:   c.DocumentNumber,
			VendorName:       c.VendorName,
			OriginalFilename: c.OriginalFilename,
		})
	}
	return sources
}

// synthesize asks the model to answer from the retrieved context. On failure
// it returns a degraded answer carrying the raw context rather than erroring.
func (s *Service) synthesize(ctx context.Context, question, searchContext string, history []HistoryMessage) string {
	var messages []anthropic.Message
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, h := range history {
		messages = append(messages, anthropic.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, anthropic.Message{
		Role:    "user",
		Content: fmt.Sprintf(queryPrompt, searchContext, question),
	})

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("chat_synthesis")
	resp, err := resilience.Do(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.model,
			MaxTokens: synthesisTokens,
			System: []anthropic.SystemBlock{
				{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
			},
			Messages: messages,
		})
	})
	if err != nil {
		zap.L().Error("chat synthesis failed", zap.Error(err))
		return fmt.Sprintf("I found relevant results but couldn't generate a summary. Error: %v\n\nRaw context:\n%s",
			err, truncate(searchContext, 1000))
	}
	resp.Usage.LogCost(s.model, "chat_synthesis")
	return resp.Text()
}

// Suggestions returns canned starter questions seeded with known vendors.
func (s *Service) Suggestions(ctx context.Context, sessionID string) ([]string, error) {
	suggestions := []string{
		"What did we buy most recently?",
		"Show me all hardware purchases",
		"What is our total spend by vendor?",
	}

	vendors, err := s.store.DistinctVendors(ctx, sessionID, 3)
	if err != nil {
		return nil, err
	}
	for _, v := range vendors {
		suggestions = append(suggestions, fmt.Sprintf("What have we purchased from %s?", v))
	}
	return suggestions, nil
}
