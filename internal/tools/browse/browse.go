// Package browse implements the buyer-facing search tools backed by the eBay
// Browse API. Without configured credentials the tools serve a small embedded
// demo catalog so the server stays usable for evaluation.
package browse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lootly/lootly/internal/ebay"
	"github.com/lootly/lootly/internal/mcp"
	"github.com/lootly/lootly/internal/oauth"
)

const (
	defaultLimit = 10
	maxLimit     = 200
)

// Client is the slice of the REST client the browse tools need.
type Client interface {
	Get(ctx context.Context, endpoint string, opts ebay.Options) (json.RawMessage, error)
}

// Register adds the browse tools to the registry. When demo is true the tools
// answer from the embedded catalog instead of calling eBay.
func Register(r *mcp.Registry, client Client, demo bool) {
	r.Register(&SearchTool{client: client, demo: demo})
	r.Register(&ItemTool{client: client, demo: demo})
}

// Price is a monetary amount as returned by the Browse API.
type Price struct {
	Value    string `json:"value" yaml:"value"`
	Currency string `json:"currency" yaml:"currency"`
}

// ItemSummary is one search result row.
type ItemSummary struct {
	ItemID     string `json:"item_id" yaml:"item_id"`
	Title      string `json:"title" yaml:"title"`
	Price      *Price `json:"price,omitempty" yaml:"price"`
	Condition  string `json:"condition,omitempty" yaml:"condition"`
	ItemWebURL string `json:"item_web_url,omitempty" yaml:"item_web_url"`
	ImageURL   string `json:"image_url,omitempty" yaml:"image_url"`
	Seller     string `json:"seller,omitempty" yaml:"seller"`
}

// ItemDetails is the full record for a single listing.
type ItemDetails struct {
	ItemSummary       `yaml:",inline"`
	Description       string   `json:"description,omitempty" yaml:"description"`
	CategoryPath      string   `json:"category_path,omitempty" yaml:"category_path"`
	EstimatedQuantity int      `json:"estimated_quantity,omitempty" yaml:"estimated_quantity"`
	ImageURLs         []string `json:"image_urls,omitempty" yaml:"image_urls"`
}

// SearchTool searches eBay listings by keyword.
type SearchTool struct {
	client Client
	demo   bool
}

func (t *SearchTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "search_items",
		Description: "Search eBay listings by keyword. Returns item summaries with price, condition, and listing URL.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keywords to search for.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum results to return (1-%d, default %d).", maxLimit, defaultLimit),
				},
				"category_ids": map[string]any{
					"type":        "string",
					"description": "Comma-separated eBay category IDs to restrict the search to.",
				},
				"sort": map[string]any{
					"type":        "string",
					"description": "Sort order, e.g. price, -price, newlyListed.",
				},
				"marketplace_id": map[string]any{
					"type":        "string",
					"description": "Marketplace override, e.g. EBAY_DE. Defaults to the configured marketplace.",
				},
			},
			"required": []string{"query"},
		}),
	}
}

type searchInput struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	CategoryIDs   string `json:"category_ids"`
	Sort          string `json:"sort"`
	MarketplaceID string `json:"marketplace_id"`
}

type searchData struct {
	Total int           `json:"total"`
	Items []ItemSummary `json:"items"`
	Demo  bool          `json:"demo_data,omitempty"`
}

// browseSearchResponse mirrors the Browse API item_summary/search body, kept
// to the fields surfaced to clients.
type browseSearchResponse struct {
	Total         int `json:"total"`
	ItemSummaries []struct {
		ItemID    string `json:"itemId"`
		Title     string `json:"title"`
		Condition string `json:"condition"`
		Price     *struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
		ItemWebURL string `json:"itemWebUrl"`
		Image      *struct {
			ImageURL string `json:"imageUrl"`
		} `json:"image"`
		Seller *struct {
			Username string `json:"username"`
		} `json:"seller"`
	} `json:"itemSummaries"`
}

func (t *SearchTool) Execute(ctx context.Context, tc *mcp.ToolContext, input json.RawMessage) (string, error) {
	in := searchInput{Limit: defaultLimit}
	if err := json.Unmarshal(input, &in); err != nil {
		return mcp.Error(mcp.CodeValidation, "invalid input: "+err.Error()), nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return mcp.Error(mcp.CodeValidation, "query is required"), nil
	}
	if in.Limit < 1 || in.Limit > maxLimit {
		return mcp.Error(mcp.CodeValidation,
			fmt.Sprintf("limit must be between 1 and %d", maxLimit)), nil
	}

	if t.demo {
		items := demoCatalog().search(in.Query, in.Limit)
		return mcp.Success(searchData{Total: len(items), Items: items, Demo: true},
			fmt.Sprintf("Found %d demo items (eBay credentials not configured).", len(items))), nil
	}

	params := url.Values{}
	params.Set("q", in.Query)
	params.Set("limit", strconv.Itoa(in.Limit))
	if in.CategoryIDs != "" {
		params.Set("category_ids", in.CategoryIDs)
	}
	if in.Sort != "" {
		params.Set("sort", in.Sort)
	}
	opts := ebay.Options{Params: params, Scope: oauth.ScopeAPI}
	if in.MarketplaceID != "" {
		opts.Headers = map[string]string{"X-EBAY-C-MARKETPLACE-ID": in.MarketplaceID}
	}

	tc.Progress(0.2, "searching eBay listings")
	body, err := t.client.Get(ctx, "/buy/browse/v1/item_summary/search", opts)
	if err != nil {
		return mcp.FromError(err), nil
	}

	var resp browseSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.Error(mcp.CodeExternalAPI, "unexpected search response shape: "+err.Error()), nil
	}

	items := make([]ItemSummary, 0, len(resp.ItemSummaries))
	for _, s := range resp.ItemSummaries {
		item := ItemSummary{
			ItemID:     s.ItemID,
			Title:      s.Title,
			Condition:  s.Condition,
			ItemWebURL: s.ItemWebURL,
		}
		if s.Price != nil {
			item.Price = &Price{Value: s.Price.Value, Currency: s.Price.Currency}
		}
		if s.Image != nil {
			item.ImageURL = s.Image.ImageURL
		}
		if s.Seller != nil {
			item.Seller = s.Seller.Username
		}
		items = append(items, item)
	}

	return mcp.Success(searchData{Total: resp.Total, Items: items},
		fmt.Sprintf("Found %d items for %q.", resp.Total, in.Query)), nil
}

// ItemTool fetches full details for a single listing.
type ItemTool struct {
	client Client
	demo   bool
}

func (t *ItemTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "get_item_details",
		Description: "Get full details for a single eBay listing by its item ID.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"item_id": map[string]any{
					"type":        "string",
					"description": "The eBay item ID, e.g. v1|1234567890|0.",
				},
			},
			"required": []string{"item_id"},
		}),
	}
}

type itemInput struct {
	ItemID string `json:"item_id"`
}

// browseItemResponse mirrors the Browse API getItem body.
type browseItemResponse struct {
	ItemID    string `json:"itemId"`
	Title     string `json:"title"`
	Condition string `json:"condition"`
	Price     *struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	ItemWebURL  string `json:"itemWebUrl"`
	Description string `json:"shortDescription"`
	Image       *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	AdditionalImages []struct {
		ImageURL string `json:"imageUrl"`
	} `json:"additionalImages"`
	Seller *struct {
		Username string `json:"username"`
	} `json:"seller"`
	CategoryPath            string `json:"categoryPath"`
	EstimatedAvailabilities []struct {
		EstimatedAvailableQuantity int `json:"estimatedAvailableQuantity"`
	} `json:"estimatedAvailabilities"`
}

func (t *ItemTool) Execute(ctx context.Context, tc *mcp.ToolContext, input json.RawMessage) (string, error) {
	var in itemInput
	if err := json.Unmarshal(input, &in); err != nil {
		return mcp.Error(mcp.CodeValidation, "invalid input: "+err.Error()), nil
	}
	if strings.TrimSpace(in.ItemID) == "" {
		return mcp.Error(mcp.CodeValidation, "item_id is required"), nil
	}

	if t.demo {
		item := demoCatalog().item(in.ItemID)
		if item == nil {
			return mcp.Error(mcp.CodeNotFound,
				fmt.Sprintf("demo item %q not found", in.ItemID)), nil
		}
		return mcp.Success(item, "Demo item (eBay credentials not configured)."), nil
	}

	endpoint := "/buy/browse/v1/item/" + url.PathEscape(in.ItemID)
	body, err := t.client.Get(ctx, endpoint, ebay.Options{Scope: oauth.ScopeAPI})
	if err != nil {
		return mcp.FromError(err), nil
	}

	var resp browseItemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.Error(mcp.CodeExternalAPI, "unexpected item response shape: "+err.Error()), nil
	}

	details := ItemDetails{
		ItemSummary: ItemSummary{
			ItemID:     resp.ItemID,
			Title:      resp.Title,
			Condition:  resp.Condition,
			ItemWebURL: resp.ItemWebURL,
		},
		Description:  resp.Description,
		CategoryPath: resp.CategoryPath,
	}
	if resp.Price != nil {
		details.Price = &Price{Value: resp.Price.Value, Currency: resp.Price.Currency}
	}
	if resp.Image != nil {
		details.ImageURL = resp.Image.ImageURL
	}
	if resp.Seller != nil {
		details.Seller = resp.Seller.Username
	}
	for _, img := range resp.AdditionalImages {
		details.ImageURLs = append(details.ImageURLs, img.ImageURL)
	}
	if len(resp.EstimatedAvailabilities) > 0 {
		details.EstimatedQuantity = resp.EstimatedAvailabilities[0].EstimatedAvailableQuantity
	}

	return mcp.Success(details, fmt.Sprintf("Item %s retrieved.", resp.ItemID)), nil
}
