package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/polyglotvid/lingoctl/internal/api"
	"github.com/polyglotvid/lingoctl/internal/settings"
)

var tracer = otel.Tracer("lingoctl-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "generate_video",
			Description: "Generate a language-learning video (bilingual speech and subtitles). Starts an async run and returns a run ID. Use get_run to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"mode": map[string]any{
						"type":        "string",
						"description": "Content mode: vocab or scenario",
						"default":     "vocab",
					},
					"level": map[string]any{
						"type":        "string",
						"description": "CEFR level: A1, A2, B1, B2",
						"default":     "A1",
					},
					"text_file": map[string]any{
						"type":        "string",
						"description": "Backend input text file (alternative to topic)",
					},
					"topic": map[string]any{
						"type":        "string",
						"description": "Topic to generate content about with an LLM (alternative to text_file)",
					},
					"items": map[string]any{
						"type":        "integer",
						"description": "Number of items to generate (default 20)",
						"default":     20,
					},
					"primary_lang": map[string]any{
						"type":        "string",
						"description": "Primary language code (e.g. en, fr, lb)",
						"default":     "en",
					},
					"secondary_lang": map[string]any{
						"type":        "string",
						"description": "Secondary language code for bilingual audio",
						"default":     "fr",
					},
					"bilingual": map[string]any{
						"type":        "boolean",
						"description": "Speak both languages",
						"default":     true,
					},
				},
			},
		},
		{
			Name:        "get_run",
			Description: "Get the status and progress of a run by ID. Use this to follow a running generation or retrieve the finished video's name.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"run_id": map[string]any{
						"type":        "string",
						"description": "The run ID returned from generate_video",
					},
				},
				Required: []string{"run_id"},
			},
		},
		{
			Name:        "list_outputs",
			Description: "List every artifact the backend has produced.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
		{
			Name:        "clear_cache",
			Description: "Empty the backend's TTS, image, and video caches.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	runs   *RunManager
	client *api.Client
	log    *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(runs *RunManager, client *api.Client, logger *slog.Logger) *Handlers {
	return &Handlers{runs: runs, client: client, log: logger}
}

// HandleGenerateVideo starts a generation run.
func (h *Handlers) HandleGenerateVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_video")
	defer span.End()

	s := settings.Default()
	s.Mode = mcp.ParseString(req, "mode", "vocab")
	s.Level = mcp.ParseString(req, "level", "A1")
	s.EnableBilingual = parseBoolParam(req, "bilingual", true)

	if topic := mcp.ParseString(req, "topic", ""); topic != "" {
		s.UseLLM = true
		s.LLMTopic = topic
		s.ItemsOverride = true
		s.LLMItemsBasic = parseIntParam(req, "items", 20)
	} else if file := mcp.ParseString(req, "text_file", ""); file != "" {
		s.TextFile = file
	} else {
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("either topic or text_file is required"), nil
	}

	primary := mcp.ParseString(req, "primary_lang", "en")
	secondary := mcp.ParseString(req, "secondary_lang", "fr")
	if !setLang(&s, primary, &s.PrimaryLangIdx) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown language %q", primary)), nil
	}
	if !setLang(&s, secondary, &s.SecondaryLangIdx) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown language %q", secondary)), nil
	}

	span.SetAttributes(
		attribute.String("mode", s.Mode),
		attribute.String("level", s.Level),
		attribute.Bool("use_llm", s.UseLLM),
	)

	if err := s.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid settings")
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := h.runs.StartRun(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start run failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start run: %v", err)), nil
	}

	span.SetAttributes(attribute.String("run_id", id))
	h.log.InfoContext(ctx, "Run started", "run_id", id, "mode", s.Mode, "level", s.Level)

	return jsonResult(map[string]any{
		"run_id":  id,
		"status":  string(StatusSubmitted),
		"message": "Run started. Use get_run with this run_id to check progress.",
	})
}

// HandleGetRun returns run status and progress.
func (h *Handlers) HandleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.get_run")
	defer span.End()

	id := mcp.ParseString(req, "run_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing run_id")
		return mcp.NewToolResultError("run_id is required"), nil
	}
	span.SetAttributes(attribute.String("run_id", id))

	run, ok := h.runs.Get(id)
	if !ok {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("run %s not found", id)), nil
	}

	result := map[string]any{
		"run_id":           run.ID,
		"status":           string(run.Status),
		"progress_percent": run.ProgressPercent,
		"stage_message":    run.StageMessage,
		"created_at":       run.CreatedAt,
	}
	if run.Output != "" {
		result["output"] = run.Output
	}
	if len(run.Warnings) > 0 {
		result["warnings"] = run.Warnings
	}
	if run.ErrorMessage != "" {
		result["error"] = run.ErrorMessage
	}
	return jsonResult(result)
}

// HandleListOutputs lists the backend's produced artifacts.
func (h *Handlers) HandleListOutputs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_outputs")
	defer span.End()

	items, err := h.client.ListOutputs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list outputs failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list outputs: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))

	outputs := make([]map[string]any, 0, len(items))
	for _, it := range items {
		outputs = append(outputs, map[string]any{
			"name":   it.Name,
			"is_dir": it.IsDir,
		})
	}
	return jsonResult(map[string]any{
		"outputs": outputs,
		"count":   len(outputs),
	})
}

// HandleClearCache empties the backend caches.
func (h *Handlers) HandleClearCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.clear_cache")
	defer span.End()

	res, err := h.client.ClearCache(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear cache failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	if !res.OK {
		return mcp.NewToolResultError(fmt.Sprintf("backend refused: %s", res.Error)), nil
	}
	return jsonResult(map[string]any{"ok": true})
}

func setLang(s *settings.Settings, code string, idx *int) bool {
	for i, c := range s.LangCodes {
		if c == code {
			*idx = i
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func parseBoolParam(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	if v, ok := args[key].(bool); ok {
		return v
	}
	return defaultVal
}
