// Package mcpserver registers MCP tools for inspecting and driving image
// syncs. It adapts the sync engine and repositories to the MCP SDK's
// tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/jobs"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ConnectionTester checks the remote API with the stored credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// Mappings is the mapping lookup the tools need.
type Mappings interface {
	Find(id string) (models.Mapping, error)
	ForPostType(postType string) ([]models.Mapping, error)
}

// Posts reports a post's type.
type Posts interface {
	PostType(id int64) (string, error)
}

// Deps holds the components the tools call.
type Deps struct {
	Engine   *imagesync.Engine
	Mappings Mappings
	Presets  imagesync.PresetFinder
	Settings imagesync.SettingsSource
	Posts    Posts
	Meta     imagesync.MetaStore
	Logs     *repos.LogsRepo
	Bulk     *jobs.Bulk

	// NewTester builds the connection tester; nil uses Cloudflare.
	NewTester func(accountID, token string) ConnectionTester
}

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	if d.NewTester == nil {
		d.NewTester = func(accountID, token string) ConnectionTester {
			return cloudflare.NewClient(accountID, token, nil)
		}
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_preview",
		Description: "Dry-run a sync for one post and mapping: resolved source attachment, stored signatures and image IDs, the upload decision and the delivery URL it would produce. Makes no remote calls and writes nothing.",
	}, previewHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_delivery_url",
		Description: "Build the imagedelivery.net URL for an image ID using a preset or an explicit variant.",
	}, deliveryURLHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_sync_post",
		Description: "Sync one post now, for one mapping or every mapping of its post type. Uploads to Cloudflare Images when needed and writes the delivery URL onto the post.",
	}, syncPostHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_test_connection",
		Description: "Check that the stored account ID and API token can reach the Cloudflare Images API.",
	}, testConnectionHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_bulk_sync",
		Description: "Queue a background re-sync of every post of a mapping, processed in chunks by the worker.",
	}, bulkSyncHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cfi_logs",
		Description: "Return the most recent entries of the sync activity log, newest last.",
	}, logsHandler(d))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// PreviewInput holds parameters for cfi_preview.
type PreviewInput struct {
	PostID    int64  `json:"post_id" jsonschema:"post to inspect"`
	MappingID string `json:"mapping_id" jsonschema:"mapping ID (map_ followed by 8 hex chars)"`
}

// DeliveryURLInput holds parameters for cfi_delivery_url.
type DeliveryURLInput struct {
	ImageID  string `json:"image_id" jsonschema:"Cloudflare image ID"`
	PresetID string `json:"preset_id,omitempty" jsonschema:"preset whose variant to use"`
	Variant  string `json:"variant,omitempty" jsonschema:"explicit variant, overrides preset_id"`
}

// SyncPostInput holds parameters for cfi_sync_post.
type SyncPostInput struct {
	PostID    int64  `json:"post_id" jsonschema:"post to sync"`
	MappingID string `json:"mapping_id,omitempty" jsonschema:"limit to one mapping, defaults to all mappings of the post type"`
}

// TestConnectionInput has no parameters.
type TestConnectionInput struct{}

// BulkSyncInput holds parameters for cfi_bulk_sync.
type BulkSyncInput struct {
	MappingID string `json:"mapping_id" jsonschema:"mapping to re-sync"`
	ChunkSize int    `json:"chunk_size,omitempty" jsonschema:"posts per chunk, defaults to 20"`
}

// LogsInput holds parameters for cfi_logs.
type LogsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return, defaults to 50"`
}

// --- Output types ---

// PreviewOutput flattens imagesync.Preview for tool output.
type PreviewOutput struct {
	PostID         int64  `json:"post_id"`
	MappingID      string `json:"mapping_id"`
	AttachmentID   int64  `json:"attachment_id"`
	FilePath       string `json:"file_path"`
	SourceEmpty    bool   `json:"source_empty"`
	CacheImageID   string `json:"cache_image_id"`
	CacheSignature string `json:"cache_signature"`
	PostURL        string `json:"post_url"`
	PostImageID    string `json:"post_image_id"`
	PostSignature  string `json:"post_signature"`
	Signature      string `json:"signature"`
	Action         string `json:"action"`
	Reason         string `json:"reason,omitempty"`
	Variant        string `json:"variant"`
	URL            string `json:"url,omitempty"`
	URLError       string `json:"url_error,omitempty"`
}

// DeliveryURLOutput is the result of cfi_delivery_url.
type DeliveryURLOutput struct {
	URL     string `json:"url"`
	Variant string `json:"variant"`
}

// MappingResult is one mapping's outcome in cfi_sync_post.
type MappingResult struct {
	MappingID string `json:"mapping_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	URL       string `json:"url,omitempty"`
}

// SyncPostOutput is the result of cfi_sync_post.
type SyncPostOutput struct {
	PostID  int64           `json:"post_id"`
	Results []MappingResult `json:"results"`
}

// TestConnectionOutput is the result of cfi_test_connection.
type TestConnectionOutput struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// BulkSyncOutput is the result of cfi_bulk_sync.
type BulkSyncOutput struct {
	MappingID string `json:"mapping_id"`
	Queued    bool   `json:"queued"`
}

// LogsOutput is the result of cfi_logs.
type LogsOutput struct {
	Total int               `json:"total"`
	Items []models.LogEntry `json:"items"`
}

const defaultLogsLimit = 50

// --- Handlers ---

func previewHandler(d Deps) mcp.ToolHandlerFor[PreviewInput, *PreviewOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PreviewInput) (*mcp.CallToolResult, *PreviewOutput, error) {
		m, err := d.Mappings.Find(input.MappingID)
		if err != nil {
			return nil, nil, err
		}

		pv, err := d.Engine.Preview(ctx, input.PostID, m)
		if err != nil {
			return nil, nil, err
		}

		out := &PreviewOutput{
			PostID:         pv.PostID,
			MappingID:      pv.MappingID,
			AttachmentID:   pv.Source.AttachmentID,
			FilePath:       pv.Source.FilePath,
			SourceEmpty:    pv.Source.Empty,
			CacheImageID:   pv.Cache.ImageID,
			CacheSignature: pv.Cache.Signature,
			PostURL:        pv.Post.URL,
			PostImageID:    pv.Post.ImageID,
			PostSignature:  pv.Post.Signature,
			Signature:      pv.Signature,
			Action:         pv.Decision.Action.String(),
			Reason:         pv.Decision.Reason,
			Variant:        pv.Variant,
			URL:            pv.URL,
			URLError:       pv.URLError,
		}

		return textResult(out), out, nil
	}
}

func deliveryURLHandler(d Deps) mcp.ToolHandlerFor[DeliveryURLInput, *DeliveryURLOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input DeliveryURLInput) (*mcp.CallToolResult, *DeliveryURLOutput, error) {
		settings, err := d.Settings.Get()
		if err != nil {
			return nil, nil, err
		}

		variant := input.Variant
		if variant == "" {
			var preset *models.Preset

			if input.PresetID != "" {
				if preset, err = d.Presets.Find(input.PresetID); err != nil {
					return nil, nil, err
				}

				if preset == nil {
					return nil, nil, fmt.Errorf("preset %q not found", input.PresetID)
				}
			}

			variant = preset.VariantOrDefault()
		}

		url, err := imagesync.NewURLBuilder(settings.AccountHash).URL(input.ImageID, variant)
		if err != nil {
			return nil, nil, err
		}

		out := &DeliveryURLOutput{URL: url, Variant: variant}

		return textResult(out), out, nil
	}
}

func syncPostHandler(d Deps) mcp.ToolHandlerFor[SyncPostInput, *SyncPostOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncPostInput) (*mcp.CallToolResult, *SyncPostOutput, error) {
		var mappings []models.Mapping

		if input.MappingID != "" {
			m, err := d.Mappings.Find(input.MappingID)
			if err != nil {
				return nil, nil, err
			}

			mappings = append(mappings, m)
		} else {
			postType, err := d.Posts.PostType(input.PostID)
			if err != nil {
				return nil, nil, err
			}

			if postType == "" {
				return nil, nil, fmt.Errorf("post %d not found", input.PostID)
			}

			if mappings, err = d.Mappings.ForPostType(postType); err != nil {
				return nil, nil, err
			}
		}

		out := &SyncPostOutput{PostID: input.PostID, Results: []MappingResult{}}

		for _, m := range mappings {
			err := d.Engine.Sync(ctx, imagesync.NewGuard(), input.PostID, m)

			r := MappingResult{MappingID: m.ID, OK: err == nil}
			if err != nil {
				r.Error = err.Error()
			} else {
				r.URL, _ = d.Meta.GetMeta(input.PostID, m.Target.URLMeta)
			}

			out.Results = append(out.Results, r)
		}

		return textResult(out), out, nil
	}
}

func testConnectionHandler(d Deps) mcp.ToolHandlerFor[TestConnectionInput, *TestConnectionOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ TestConnectionInput) (*mcp.CallToolResult, *TestConnectionOutput, error) {
		settings, err := d.Settings.Get()
		if err != nil {
			return nil, nil, err
		}

		out := &TestConnectionOutput{OK: true, Message: "connection successful"}

		if !settings.HasCredentials() {
			out = &TestConnectionOutput{Message: "account ID and API token are not configured"}
		} else if err := d.NewTester(settings.AccountID, settings.APIToken).TestConnection(ctx); err != nil {
			out = &TestConnectionOutput{Message: err.Error()}
		}

		return textResult(out), out, nil
	}
}

func bulkSyncHandler(d Deps) mcp.ToolHandlerFor[BulkSyncInput, *BulkSyncOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input BulkSyncInput) (*mcp.CallToolResult, *BulkSyncOutput, error) {
		if err := d.Bulk.Start(ctx, input.MappingID, input.ChunkSize); err != nil {
			return nil, nil, err
		}

		out := &BulkSyncOutput{MappingID: input.MappingID, Queued: true}

		return textResult(out), out, nil
	}
}

func logsHandler(d Deps) mcp.ToolHandlerFor[LogsInput, *LogsOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input LogsInput) (*mcp.CallToolResult, *LogsOutput, error) {
		items, err := d.Logs.All()
		if err != nil {
			return nil, nil, err
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultLogsLimit
		}

		out := &LogsOutput{Total: len(items), Items: items[max(len(items)-limit, 0):]}
		if out.Items == nil {
			out.Items = []models.LogEntry{}
		}

		return textResult(out), out, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
