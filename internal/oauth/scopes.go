package oauth

import "strings"

// eBay OAuth scopes. Scope URLs are the same in sandbox and production.
const (
	ScopeAPI = "https://api.ebay.com/oauth/api_scope"

	ScopeBuyOffer     = "https://api.ebay.com/oauth/api_scope/buy.offer"
	ScopeBuyOrder     = "https://api.ebay.com/oauth/api_scope/buy.order"
	ScopeBuyMarketing = "https://api.ebay.com/oauth/api_scope/buy.marketing"
	ScopeBuyInsights  = "https://api.ebay.com/oauth/api_scope/buy.marketplace.insights"

	ScopeSellInventory         = "https://api.ebay.com/oauth/api_scope/sell.inventory"
	ScopeSellInventoryReadonly = "https://api.ebay.com/oauth/api_scope/sell.inventory.readonly"
	ScopeSellMarketing         = "https://api.ebay.com/oauth/api_scope/sell.marketing"
	ScopeSellAccount           = "https://api.ebay.com/oauth/api_scope/sell.account"
	ScopeSellAccountReadonly   = "https://api.ebay.com/oauth/api_scope/sell.account.readonly"
	ScopeSellFulfillment       = "https://api.ebay.com/oauth/api_scope/sell.fulfillment"
	ScopeSellAnalytics         = "https://api.ebay.com/oauth/api_scope/sell.analytics.readonly"
	ScopeSellFinances          = "https://api.ebay.com/oauth/api_scope/sell.finances"

	ScopeCommerceCatalog  = "https://api.ebay.com/oauth/api_scope/commerce.catalog.readonly"
	ScopeCommerceTaxonomy = "https://api.ebay.com/oauth/api_scope/commerce.taxonomy.readonly"
	ScopeCommerceIdentity = "https://api.ebay.com/oauth/api_scope/commerce.identity.readonly"
)

// UserConsentScopes is the scope set requested during the user
// authorization-code flow.
const UserConsentScopes = ScopeSellAccount + " " + ScopeSellInventory

var knownScopes = map[string]string{
	ScopeAPI:                   "Basic API access",
	ScopeBuyOffer:              "Make offers on eBay items",
	ScopeBuyOrder:              "Manage purchase orders",
	ScopeBuyMarketing:          "Access marketing and promotional data",
	ScopeBuyInsights:           "Access marketplace insights and analytics",
	ScopeSellInventory:         "Manage inventory items and listings",
	ScopeSellInventoryReadonly: "Read-only access to inventory items",
	ScopeSellMarketing:         "Manage marketing campaigns and promotions",
	ScopeSellAccount:           "Manage seller account settings and policies",
	ScopeSellAccountReadonly:   "Read-only access to seller account data",
	ScopeSellFulfillment:       "Manage order fulfillment and shipping",
	ScopeSellAnalytics:         "Access seller analytics and performance data",
	ScopeSellFinances:          "Access financial data and reports",
	ScopeCommerceCatalog:       "Access product catalog data",
	ScopeCommerceTaxonomy:      "Access category and taxonomy data",
	ScopeCommerceIdentity:      "Access identity and profile data",
}

// ValidScope reports whether every space-separated scope in s is a known
// eBay OAuth scope.
func ValidScope(s string) bool {
	scopes := SplitScopes(s)
	if len(scopes) == 0 {
		return false
	}
	for _, sc := range scopes {
		if _, ok := knownScopes[sc]; !ok {
			return false
		}
	}
	return true
}

// ScopeDescription returns a human-readable description of a single scope.
func ScopeDescription(scope string) string {
	if desc, ok := knownScopes[scope]; ok {
		return desc
	}
	return "Unknown scope"
}

// SplitScopes splits a space-separated scope string into individual scopes.
func SplitScopes(s string) []string {
	return strings.Fields(s)
}
