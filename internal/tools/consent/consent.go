// Package consent implements the user-authorization tools: checking consent
// status, starting and completing the browser consent flow, and revoking the
// stored user token.
package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lootly/lootly/internal/mcp"
	"github.com/lootly/lootly/internal/oauth"
)

// Register adds all consent tools to the registry.
func Register(r *mcp.Registry, mgr *oauth.Manager) {
	r.Register(&StatusTool{mgr: mgr})
	r.Register(&InitiateTool{mgr: mgr})
	r.Register(&CompleteTool{mgr: mgr})
	r.Register(&RevokeTool{mgr: mgr})
}

// StatusTool reports whether a valid user token is stored.
type StatusTool struct {
	mgr *oauth.Manager
}

func (t *StatusTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "check_consent_status",
		Description: "Check whether the user has authorized this application and the stored token is still valid.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}),
	}
}

type statusData struct {
	Authorized      bool              `json:"authorized"`
	TokenExpired    bool              `json:"token_expired,omitempty"`
	ExpiresAt       string            `json:"expires_at,omitempty"`
	TimeRemaining   string            `json:"time_remaining,omitempty"`
	Scopes          map[string]string `json:"scopes,omitempty"`
	ConsentRequired bool              `json:"consent_required"`
}

// scopeCatalog maps each granted scope to its description.
func scopeCatalog(scope string) map[string]string {
	scopes := oauth.SplitScopes(scope)
	if len(scopes) == 0 {
		return nil
	}
	catalog := make(map[string]string, len(scopes))
	for _, s := range scopes {
		catalog[s] = oauth.ScopeDescription(s)
	}
	return catalog
}

func (t *StatusTool) Execute(_ context.Context, tc *mcp.ToolContext, _ json.RawMessage) (string, error) {
	record := t.mgr.UserTokenInfo()
	if record == nil {
		return mcp.Success(statusData{
			Authorized:      false,
			ConsentRequired: true,
		}, "No user authorization on file. Run initiate_user_consent to authorize."), nil
	}

	data := statusData{
		Authorized: true,
		ExpiresAt:  record.ExpiresAt.UTC().Format(time.RFC3339),
		Scopes:     scopeCatalog(record.Scope),
	}
	if record.IsExpired() {
		data.Authorized = false
		data.TokenExpired = true
		data.ConsentRequired = true
		return mcp.Success(data, "Stored user token has expired. Run initiate_user_consent to re-authorize."), nil
	}
	data.TimeRemaining = time.Until(record.ExpiresAt).Round(time.Second).String()
	tc.Info("user token valid")
	return mcp.Success(data, "User authorization is active."), nil
}

// InitiateTool starts the browser consent flow.
type InitiateTool struct {
	mgr *oauth.Manager
}

func (t *InitiateTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "initiate_user_consent",
		Description: "Start the eBay user authorization flow. Opens a browser to the eBay consent page and returns the authorization URL.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}),
	}
}

type initiateData struct {
	AuthURL       string `json:"auth_url"`
	BrowserOpened bool   `json:"browser_opened"`
	RedirectURI   string `json:"redirect_uri"`
	NextStep      string `json:"next_step"`
}

func (t *InitiateTool) Execute(ctx context.Context, tc *mcp.ToolContext, _ json.RawMessage) (string, error) {
	session, err := t.mgr.InitiateConsentFlow(ctx)
	if err != nil {
		tc.Error("consent flow initiation failed: " + err.Error())
		return mcp.FromError(err), nil
	}

	msg := "Authorization started. Sign in on the opened eBay page, approve access, then pass the full callback URL to complete_user_consent."
	if !session.BrowserOpened {
		msg = "Authorization started, but a browser could not be opened. Visit auth_url manually, approve access, then pass the full callback URL to complete_user_consent."
	}
	return mcp.Success(initiateData{
		AuthURL:       session.AuthURL,
		BrowserOpened: session.BrowserOpened,
		RedirectURI:   session.RedirectURI,
		NextStep:      "complete_user_consent",
	}, msg), nil
}

// CompleteTool finishes the consent flow from the callback URL.
type CompleteTool struct {
	mgr *oauth.Manager
}

func (t *CompleteTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "complete_user_consent",
		Description: "Complete the eBay user authorization flow using the callback URL from the browser after approving access.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"callback_url": map[string]any{
					"type":        "string",
					"description": "The full URL the browser was redirected to after approving access, including the code and state parameters.",
				},
			},
			"required": []string{"callback_url"},
		}),
	}
}

type completeInput struct {
	CallbackURL string `json:"callback_url"`
}

type completeData struct {
	ExpiresAt string   `json:"expires_at"`
	Scopes    []string `json:"scopes"`
}

func (t *CompleteTool) Execute(ctx context.Context, tc *mcp.ToolContext, input json.RawMessage) (string, error) {
	var in completeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return mcp.Error(mcp.CodeValidation, "invalid input: "+err.Error()), nil
	}
	if in.CallbackURL == "" {
		return mcp.Error(mcp.CodeValidation, "callback_url is required"), nil
	}

	result, err := t.mgr.CompleteConsentFlow(ctx, in.CallbackURL)
	if err != nil {
		tc.Error("consent flow completion failed: " + err.Error())
		return mcp.FromError(err), nil
	}

	return mcp.Success(completeData{
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		Scopes:    result.Scopes,
	}, fmt.Sprintf("Authorization complete. User token valid until %s.",
		result.ExpiresAt.UTC().Format(time.RFC3339))), nil
}

// RevokeTool deletes the stored user token.
type RevokeTool struct {
	mgr *oauth.Manager
}

func (t *RevokeTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "revoke_user_consent",
		Description: "Delete the stored eBay user token. Seller tools will require re-authorization afterwards.",
		InputSchema: mcp.MustSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}),
	}
}

func (t *RevokeTool) Execute(_ context.Context, tc *mcp.ToolContext, _ json.RawMessage) (string, error) {
	existed, err := t.mgr.DeleteUserToken()
	if err != nil {
		return mcp.FromError(fmt.Errorf("revoking user token: %w", err)), nil
	}
	if !existed {
		return mcp.Success(map[string]any{"revoked": false}, "No user token was stored."), nil
	}
	tc.Info("user token revoked")
	return mcp.Success(map[string]any{"revoked": true}, "User token deleted. Run initiate_user_consent to authorize again."), nil
}
