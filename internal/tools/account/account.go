// Package account implements seller account tools backed by the eBay Account
// API. All tools here require user authorization (the consent flow), not just
// application credentials.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/lootly/lootly/internal/ebay"
	"github.com/lootly/lootly/internal/mcp"
)

// Client is the slice of the REST client the account tools need.
type Client interface {
	Get(ctx context.Context, endpoint string, opts ebay.Options) (json.RawMessage, error)
}

// Register adds the account tools to the registry. defaultMarketplace is used
// when a call does not override it.
func Register(r *mcp.Registry, client Client, defaultMarketplace string) {
	r.Register(&PolicyTool{
		client:             client,
		defaultMarketplace: defaultMarketplace,
		name:               "get_return_policies",
		description:        "List the seller's return policies. Requires user authorization.",
		endpoint:           "/sell/account/v1/return_policy",
		listKey:            "returnPolicies",
	})
	r.Register(&PolicyTool{
		client:             client,
		defaultMarketplace: defaultMarketplace,
		name:               "get_fulfillment_policies",
		description:        "List the seller's fulfillment (shipping) policies. Requires user authorization.",
		endpoint:           "/sell/account/v1/fulfillment_policy",
		listKey:            "fulfillmentPolicies",
	})
	r.Register(&PolicyTool{
		client:             client,
		defaultMarketplace: defaultMarketplace,
		name:               "get_payment_policies",
		description:        "List the seller's payment policies. Requires user authorization.",
		endpoint:           "/sell/account/v1/payment_policy",
		listKey:            "paymentPolicies",
	})
}

// PolicyTool lists one kind of seller business policy. The three Account API
// policy endpoints share a shape, so one tool type covers them.
type PolicyTool struct {
	client             Client
	defaultMarketplace string
	name               string
	description        string
	endpoint           string
	listKey            string
}

func (t *PolicyTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        t.name,
		Description: t.description,
		InputSchema: mcp.MustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"marketplace_id": map[string]any{
					"type":        "string",
					"description": "Marketplace to list policies for, e.g. EBAY_US. Defaults to the configured marketplace.",
				},
			},
		}),
	}
}

type policyInput struct {
	MarketplaceID string `json:"marketplace_id"`
}

type policyData struct {
	Total         int               `json:"total"`
	MarketplaceID string            `json:"marketplace_id"`
	Policies      []json.RawMessage `json:"policies"`
}

func (t *PolicyTool) Execute(ctx context.Context, tc *mcp.ToolContext, input json.RawMessage) (string, error) {
	in := policyInput{MarketplaceID: t.defaultMarketplace}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return mcp.Error(mcp.CodeValidation, "invalid input: "+err.Error()), nil
		}
		if in.MarketplaceID == "" {
			in.MarketplaceID = t.defaultMarketplace
		}
	}

	params := url.Values{}
	params.Set("marketplace_id", in.MarketplaceID)

	// Empty scope routes the call through the stored user token.
	body, err := t.client.Get(ctx, t.endpoint, ebay.Options{Params: params})
	if err != nil {
		tc.Error(t.name + " failed: " + err.Error())
		return mcp.FromError(err), nil
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return mcp.Error(mcp.CodeExternalAPI, "unexpected policy response shape: "+err.Error()), nil
	}

	data := policyData{MarketplaceID: in.MarketplaceID, Policies: []json.RawMessage{}}
	if raw, ok := parsed["total"]; ok {
		_ = json.Unmarshal(raw, &data.Total)
	}
	if raw, ok := parsed[t.listKey]; ok {
		if err := json.Unmarshal(raw, &data.Policies); err != nil {
			return mcp.Error(mcp.CodeExternalAPI, "unexpected policy list shape: "+err.Error()), nil
		}
	}

	return mcp.Success(data,
		fmt.Sprintf("Found %d policies for %s.", data.Total, in.MarketplaceID)), nil
}
