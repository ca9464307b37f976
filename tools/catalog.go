package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petasbytes/mcp-agent/internal/index"
	"github.com/petasbytes/mcp-agent/internal/objstore"
	"github.com/petasbytes/mcp-agent/internal/reasoning"
)

// maxSummaryRunes caps the reasoning summary returned to the client.
const maxSummaryRunes = 3000

// ErrNotConfigured is wrapped by tools whose backend is not set up.
var ErrNotConfigured = errors.New("tool backend not configured")

// SalesDB is the sales database as the tools see it.
type SalesDB interface {
	Report(ctx context.Context, now time.Time) (string, error)
	Display(ctx context.Context) (string, error)
}

// IndexRunner builds the chunk index.
type IndexRunner interface {
	Run(ctx context.Context) (*index.Report, error)
}

// Reasoner answers a query over the chunk index.
type Reasoner interface {
	Reason(ctx context.Context, query string) (*reasoning.Outcome, error)
}

// Deps are the backends the catalog tools call. A nil backend makes its
// tool report ErrNotConfigured instead of failing registration.
type Deps struct {
	Now      func() time.Time
	Sales    SalesDB
	Objects  objstore.Store
	Prefix   string
	Indexer  IndexRunner
	Reasoner Reasoner
}

// EmptyInput is the argument type of tools that take none.
type EmptyInput struct{}

// ReasoningInput is the argument of get-reasoning_output.
type ReasoningInput struct {
	Query string `json:"query" jsonschema_description:"The question to answer from the indexed incident files."`
}

// NewCatalog registers the tool server's six tools, in catalog order.
func NewCatalog(deps Deps) (*Registry, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	noArgs := GenerateSchema[EmptyInput]()

	defs := []ToolDefinition{
		{
			Name:        "get-datetime",
			Description: "Get the current date and time",
			InputSchema: noArgs,
			Function: func(context.Context, json.RawMessage) (string, error) {
				return "Current date and time: " + deps.Now().Format(time.DateTime), nil
			},
		},
		{
			Name:        "get-salereport",
			Description: "Generate a sales analysis report from the database.",
			InputSchema: noArgs,
			Function: func(ctx context.Context, _ json.RawMessage) (string, error) {
				if deps.Sales == nil {
					return "", fmt.Errorf("sales database: %w", ErrNotConfigured)
				}
				report, err := deps.Sales.Report(ctx, deps.Now())
				if err != nil {
					return "", fmt.Errorf("generate sales report: %w", err)
				}
				return "Sales Report:\n" + report, nil
			},
		},
		{
			Name:        "get-database_data",
			Description: "Display all available data from internal system database.",
			InputSchema: noArgs,
			Function: func(ctx context.Context, _ json.RawMessage) (string, error) {
				if deps.Sales == nil {
					return "", fmt.Errorf("sales database: %w", ErrNotConfigured)
				}
				data, err := deps.Sales.Display(ctx)
				if err != nil {
					return "", fmt.Errorf("display database: %w", err)
				}
				return "Database Data:\n" + data, nil
			},
		},
		{
			Name:        "get-incident_files",
			Description: "List aircraft incident PDF files from S3.",
			InputSchema: noArgs,
			Function: func(ctx context.Context, _ json.RawMessage) (string, error) {
				if deps.Objects == nil {
					return "", fmt.Errorf("object store: %w", ErrNotConfigured)
				}
				objs, err := deps.Objects.List(ctx, deps.Prefix)
				if err != nil {
					return "", fmt.Errorf("list incident files: %w", err)
				}
				return "Incident Files:\n" + objstore.Structure(objs), nil
			},
		},
		{
			Name:        "get-aws_s3_file_indexing",
			Description: "Index the S3 incident files for chunk-level keyword and topic extraction.",
			InputSchema: noArgs,
			Function: func(ctx context.Context, _ json.RawMessage) (string, error) {
				if deps.Indexer == nil {
					return "", fmt.Errorf("indexer: %w", ErrNotConfigured)
				}
				rep, err := deps.Indexer.Run(ctx)
				if err != nil {
					return "", fmt.Errorf("index incident files: %w", err)
				}
				return fmt.Sprintf("S3 files indexed successfully (%s).", rep), nil
			},
		},
		{
			Name:        "get-reasoning_output",
			Description: "Generate a reasoning summary and note-graph based on a query over indexed S3 content for aircraft incident.",
			InputSchema: GenerateSchema[ReasoningInput](),
			Function: func(ctx context.Context, raw json.RawMessage) (string, error) {
				if deps.Reasoner == nil {
					return "", fmt.Errorf("reasoner: %w", ErrNotConfigured)
				}
				in, err := decodeInput[ReasoningInput](raw)
				if err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				if strings.TrimSpace(in.Query) == "" {
					return "", errors.New("query is required")
				}
				out, err := deps.Reasoner.Reason(ctx, in.Query)
				if err != nil {
					return "", err
				}
				summary := reasoning.TruncateRunes(out.Summary, maxSummaryRunes)
				if summary != out.Summary {
					summary += "..."
				}
				return "Reasoning Summary:\n" + summary, nil
			},
		},
	}

	reg := NewRegistry()
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
