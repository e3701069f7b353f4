package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/pkg/engine"
	"github.com/codescout-dev/codescout/pkg/persist"
)

// Tool name constants.
const (
	ToolNameAnalyze = "analyze_repository"
	ToolNamePlan    = "plan_chunks"
)

// DefaultMaxFiles caps how many files one analyze call covers when the
// caller does not set a limit.
const DefaultMaxFiles = 10000

// snapshotBasename is the file stem analysis snapshots are saved under.
const snapshotBasename = "analysis"

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates the path is not an absolute path.
	ErrPathNotAbsolute = errors.New("path must be an absolute path")
	// ErrPathNotFound indicates the repository path does not exist.
	ErrPathNotFound = errors.New("path does not exist")
	// ErrSnapshotNotAbsolute indicates the snapshot_dir is not an absolute path.
	ErrSnapshotNotAbsolute = errors.New("snapshot_dir must be an absolute path")
	// ErrNoRunner indicates the server was built without an analysis runner.
	ErrNoRunner = errors.New("no analysis runner configured")
)

// Runner executes analysis pipelines on behalf of tool calls.
type Runner interface {
	// Analyze runs the full scan-plan-analyze pipeline and returns the
	// report document.
	Analyze(ctx context.Context, req AnalyzeRequest) (*report.Document, error)

	// Plan runs the scan and the planner only.
	Plan(ctx context.Context, req PlanRequest) (PlanSummary, error)
}

// AnalyzeRequest carries the analyze_repository parameters to the runner.
type AnalyzeRequest struct {
	Root     string
	GitOnly  bool
	MaxFiles int
}

// PlanRequest carries the plan_chunks parameters to the runner. A zero
// ChunkSizeTarget keeps the configured target.
type PlanRequest struct {
	Root            string
	GitOnly         bool
	ChunkSizeTarget int
}

// PlanSummary is the runner's planner preview.
type PlanSummary struct {
	Files  int
	Chunks []engine.Chunk
}

// Input types (auto-generate JSON schemas via struct tags).

// AnalyzeInput is the input schema for the analyze_repository tool.
type AnalyzeInput struct {
	GitOnly     bool   `json:"git_only,omitempty"     jsonschema:"analyze only files tracked at git HEAD"`
	MaxFiles    int    `json:"max_files,omitempty"    jsonschema:"maximum number of files to analyze (default: 10000)"`
	Path        string `json:"path"                   jsonschema:"absolute path to the repository to analyze"`
	SnapshotDir string `json:"snapshot_dir,omitempty" jsonschema:"absolute directory to save the full analysis document as compressed JSON"`
}

// PlanInput is the input schema for the plan_chunks tool.
type PlanInput struct {
	ChunkSizeTarget int    `json:"chunk_size_target,omitempty" jsonschema:"maximum files per chunk (default: 20)"`
	GitOnly         bool   `json:"git_only,omitempty"          jsonschema:"plan only files tracked at git HEAD"`
	Path            string `json:"path"                        jsonschema:"absolute path to the repository to plan"`
}

// Output types (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// AnalyzeOutput is the analyze_repository result payload.
type AnalyzeOutput struct {
	Root         string               `json:"root"`
	Summary      report.Summary       `json:"summary"`
	Performance  report.Performance   `json:"performance"`
	Chunks       []report.ChunkReport `json:"chunks"`
	Failures     []report.Failure     `json:"failures,omitempty"`
	SnapshotPath string               `json:"snapshot_path,omitempty"`
}

// PlanOutput is the plan_chunks result payload.
type PlanOutput struct {
	Root   string               `json:"root"`
	Files  int                  `json:"files"`
	Chunks []report.ChunkReport `json:"chunks"`
}

// handleAnalyze processes analyze_repository tool calls.
func (s *Server) handleAnalyze(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input AnalyzeInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.runner == nil {
		return errorResult(ErrNoRunner)
	}

	err := validatePath(input.Path)
	if err != nil {
		return errorResult(err)
	}

	if input.SnapshotDir != "" && !filepath.IsAbs(input.SnapshotDir) {
		return errorResult(ErrSnapshotNotAbsolute)
	}

	maxFiles := input.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	doc, err := s.runner.Analyze(ctx, AnalyzeRequest{
		Root:     input.Path,
		GitOnly:  input.GitOnly,
		MaxFiles: maxFiles,
	})
	if err != nil {
		return errorResult(fmt.Errorf("analyze repository: %w", err))
	}

	output := AnalyzeOutput{
		Root:        doc.Root,
		Summary:     doc.Summary,
		Performance: doc.Performance,
		Chunks:      doc.Chunks,
		Failures:    doc.Failures,
	}

	if input.SnapshotDir != "" {
		path, err := saveSnapshot(input.SnapshotDir, doc)
		if err != nil {
			return errorResult(fmt.Errorf("save snapshot: %w", err))
		}

		output.SnapshotPath = path
	}

	return jsonResult(output)
}

// handlePlan processes plan_chunks tool calls.
func (s *Server) handlePlan(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input PlanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.runner == nil {
		return errorResult(ErrNoRunner)
	}

	err := validatePath(input.Path)
	if err != nil {
		return errorResult(err)
	}

	summary, err := s.runner.Plan(ctx, PlanRequest{
		Root:            input.Path,
		GitOnly:         input.GitOnly,
		ChunkSizeTarget: input.ChunkSizeTarget,
	})
	if err != nil {
		return errorResult(fmt.Errorf("plan chunks: %w", err))
	}

	// Build renders the chunk rows the same way a full report does.
	doc := report.Build(report.BuildInput{
		Root:   input.Path,
		Files:  summary.Files,
		Chunks: summary.Chunks,
	})

	return jsonResult(PlanOutput{
		Root:   input.Path,
		Files:  summary.Files,
		Chunks: doc.Chunks,
	})
}

// saveSnapshot persists the full document into dir as LZ4-compressed
// JSON and returns the written path.
func saveSnapshot(dir string, doc *report.Document) (string, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	codec, err := persist.ForFormat("json", true)
	if err != nil {
		return "", err
	}

	persister := persist.NewPersister[report.Document](snapshotBasename, codec)

	err = persister.Save(dir, doc)
	if err != nil {
		return "", err
	}

	return persister.Path(dir), nil
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validatePath checks common repository path constraints.
func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrPathNotFound, path)
	}

	return nil
}
