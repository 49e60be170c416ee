// Package mcp exposes the snapshot store as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/treesnap/treesnap/internal/blobstore"
	"github.com/treesnap/treesnap/internal/config"
	"github.com/treesnap/treesnap/internal/database"
	"github.com/treesnap/treesnap/internal/diffengine"
	"github.com/treesnap/treesnap/internal/usecase"
)

// Server wraps the MCP server with snapshot-store functionality
type Server struct {
	server *mcp.Server
	dbCtx  *database.Context
	blobs  blobstore.Store
}

// NewServer creates a new MCP server instance
func NewServer() (*Server, error) {
	dbCtx, err := database.CreateDatabase("")
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	blobs := blobstore.NewFilesystem(config.GetBlobsDir())

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "treesnap",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server: mcpServer,
		dbCtx:  dbCtx,
		blobs:  blobs,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	defer database.CloseDatabase(s.dbCtx)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) snapshots() *usecase.Snapshot {
	return usecase.NewSnapshot(s.dbCtx, s.blobs)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_create",
		Description: "Create a content-addressed snapshot of a directory",
	}, s.handleCreate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_get",
		Description: "Get snapshot metadata by id",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_list",
		Description: "List snapshots, optionally filtered by repository and branch",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_file",
		Description: "Read one file's content from a snapshot",
	}, s.handleFile)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_diff",
		Description: "Compare two snapshots: changed files, line diffs, languages, risk",
	}, s.handleDiff)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_delete",
		Description: "Delete a snapshot, migrating shared blobs to surviving snapshots",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_branch",
		Description: "Create a branch snapshot sharing all content with its base",
	}, s.handleBranch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snapshot_merge",
		Description: "Merge two branch snapshots (second branch wins conflicts)",
	}, s.handleMerge)
}

// Input/Output types for each tool

type SnapshotInfo struct {
	ID               int64            `json:"id"`
	Repository       string           `json:"repository"`
	CommitSHA        string           `json:"commitSha,omitempty"`
	Branch           string           `json:"branch,omitempty"`
	ManifestHash     string           `json:"manifestHash"`
	FileCount        int64            `json:"fileCount"`
	ChangedFileCount int64            `json:"changedFileCount"`
	Languages        map[string]int64 `json:"languages,omitempty"`
	ParentSnapshotID int64            `json:"parentSnapshotId,omitempty"`
	CreatedAt        string           `json:"createdAt"`
}

func snapshotInfo(r database.SnapshotRecord) SnapshotInfo {
	return SnapshotInfo{
		ID:               r.ID,
		Repository:       r.Repository,
		CommitSHA:        r.CommitSHA,
		Branch:           r.Branch,
		ManifestHash:     r.ManifestHash,
		FileCount:        r.FileCount,
		ChangedFileCount: r.ChangedFileCount,
		Languages:        r.Languages,
		ParentSnapshotID: r.ParentSnapshotID,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

type CreateInput struct {
	Path       string   `json:"path" jsonschema:"required,description=Directory to snapshot"`
	Repository *string  `json:"repository,omitempty" jsonschema:"description=Repository name (defaults to git remote or directory name)"`
	CommitSHA  *string  `json:"commitSha,omitempty" jsonschema:"description=Commit SHA label (defaults to git HEAD)"`
	Branch     *string  `json:"branch,omitempty" jsonschema:"description=Branch label (defaults to git branch)"`
	Exclude    []string `json:"exclude,omitempty" jsonschema:"description=Additional gitignore-style exclude patterns"`
}

type CreateOutput struct {
	Snapshot    SnapshotInfo `json:"snapshot"`
	Reused      bool         `json:"reused"`
	StoredBlobs int          `json:"storedBlobs"`
}

type GetInput struct {
	ID int64 `json:"id" jsonschema:"required,description=Snapshot id"`
}

type GetOutput struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

type ListInput struct {
	Repository *string `json:"repository,omitempty" jsonschema:"description=Filter by repository name"`
	Branch     *string `json:"branch,omitempty" jsonschema:"description=Filter by branch (requires repository)"`
	Limit      *int64  `json:"limit,omitempty" jsonschema:"description=Maximum number of snapshots to return"`
	Offset     *int64  `json:"offset,omitempty" jsonschema:"description=Number of snapshots to skip"`
}

type ListOutput struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

type FileInput struct {
	ID   int64  `json:"id" jsonschema:"required,description=Snapshot id"`
	Path string `json:"path" jsonschema:"required,description=File path within the snapshot"`
}

type FileOutput struct {
	Content string `json:"content"`
}

type DiffInput struct {
	Before        int64               `json:"before" jsonschema:"required,description=Snapshot id of the before state"`
	After         int64               `json:"after" jsonschema:"required,description=Snapshot id of the after state"`
	SymbolsBefore []SymbolMetricInput `json:"symbolsBefore,omitempty" jsonschema:"description=Symbol metrics for the before snapshot"`
	SymbolsAfter  []SymbolMetricInput `json:"symbolsAfter,omitempty" jsonschema:"description=Symbol metrics for the after snapshot"`
}

type SymbolMetricInput struct {
	Name          string `json:"name,omitempty" jsonschema:"description=Short symbol name"`
	QualifiedName string `json:"qualifiedName" jsonschema:"required,description=Unique qualified name of the symbol"`
	Kind          string `json:"kind,omitempty" jsonschema:"description=Symbol kind such as function or class"`
	FilePath      string `json:"filePath,omitempty" jsonschema:"description=File declaring the symbol"`
	ContentHash   string `json:"contentHash,omitempty" jsonschema:"description=Hash of the symbol body"`
	Complexity    int    `json:"complexity,omitempty" jsonschema:"description=Cyclomatic complexity of the symbol"`
}

type DiffFileOutput struct {
	Path         string `json:"path"`
	LinesAdded   int    `json:"linesAdded"`
	LinesRemoved int    `json:"linesRemoved"`
	Patch        string `json:"patch"`
}

type DiffOutput struct {
	Added        []string         `json:"added"`
	Removed      []string         `json:"removed"`
	Modified     []string         `json:"modified"`
	Unchanged    int              `json:"unchanged"`
	LinesAdded   int              `json:"linesAdded"`
	LinesRemoved int              `json:"linesRemoved"`
	CodeChurn    int              `json:"codeChurn"`
	FileDiffs    []DiffFileOutput `json:"fileDiffs,omitempty"`
	Symbols      *SymbolsOutput   `json:"symbols,omitempty"`
	RiskLevel    string           `json:"riskLevel"`
	RiskScore    float64          `json:"riskScore"`
}

type SymbolsOutput struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

type DeleteInput struct {
	ID int64 `json:"id" jsonschema:"required,description=Snapshot id to delete"`
}

type DeleteOutput struct {
	Message string `json:"message"`
}

type BranchInput struct {
	BaseID int64  `json:"baseId" jsonschema:"required,description=Snapshot id to branch from"`
	Name   string `json:"name" jsonschema:"required,description=Branch name for the new snapshot"`
}

type BranchOutput struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

type MergeInput struct {
	Branch1 int64  `json:"branch1" jsonschema:"required,description=First branch snapshot id"`
	Branch2 int64  `json:"branch2" jsonschema:"required,description=Second branch snapshot id (wins conflicts)"`
	Name    string `json:"name" jsonschema:"required,description=Branch name for the merged snapshot"`
}

type MergeOutput struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

// Tool handlers

func (s *Server) handleCreate(ctx context.Context, req *mcp.CallToolRequest, input CreateInput) (*mcp.CallToolResult, CreateOutput, error) {
	in := usecase.CreateInput{
		Path:            input.Path,
		ExcludePatterns: input.Exclude,
	}
	if input.Repository != nil {
		in.Repository = *input.Repository
	}
	if input.CommitSHA != nil {
		in.CommitSHA = *input.CommitSHA
	}
	if input.Branch != nil {
		in.Branch = *input.Branch
	}

	result, err := s.snapshots().CreateFromPath(ctx, in)
	if err != nil {
		return nil, CreateOutput{}, fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil, CreateOutput{
		Snapshot:    snapshotInfo(result.Snapshot),
		Reused:      result.Reused,
		StoredBlobs: result.StoredBlobs,
	}, nil
}

func (s *Server) handleGet(ctx context.Context, req *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, GetOutput, error) {
	record, err := s.snapshots().Get(ctx, input.ID)
	if err != nil {
		return nil, GetOutput{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return nil, GetOutput{Snapshot: snapshotInfo(*record)}, nil
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	var repository, branch string
	var limit, offset int64
	if input.Repository != nil {
		repository = *input.Repository
	}
	if input.Branch != nil {
		branch = *input.Branch
	}
	if input.Limit != nil {
		limit = *input.Limit
	}
	if input.Offset != nil {
		offset = *input.Offset
	}

	records, err := s.snapshots().List(ctx, repository, branch, limit, offset)
	if err != nil {
		return nil, ListOutput{}, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := ListOutput{Snapshots: make([]SnapshotInfo, 0, len(records))}
	for _, r := range records {
		out.Snapshots = append(out.Snapshots, snapshotInfo(r))
	}
	return nil, out, nil
}

func (s *Server) handleFile(ctx context.Context, req *mcp.CallToolRequest, input FileInput) (*mcp.CallToolResult, FileOutput, error) {
	data, err := s.snapshots().GetFileContent(ctx, input.ID, input.Path)
	if err != nil {
		return nil, FileOutput{}, fmt.Errorf("failed to read file: %w", err)
	}
	return nil, FileOutput{Content: string(data)}, nil
}

func (s *Server) handleDiff(ctx context.Context, req *mcp.CallToolRequest, input DiffInput) (*mcp.CallToolResult, DiffOutput, error) {
	var opts *usecase.CompareOptions
	if len(input.SymbolsBefore) > 0 || len(input.SymbolsAfter) > 0 {
		opts = &usecase.CompareOptions{
			SymbolsBefore: symbolMetrics(input.SymbolsBefore),
			SymbolsAfter:  symbolMetrics(input.SymbolsAfter),
		}
	}

	result, err := s.snapshots().Compare(ctx, input.Before, input.After, opts)
	if err != nil {
		return nil, DiffOutput{}, fmt.Errorf("failed to compare snapshots: %w", err)
	}

	out := DiffOutput{
		Added:        result.Added,
		Removed:      result.Removed,
		Modified:     result.Modified,
		Unchanged:    len(result.Unchanged),
		LinesAdded:   result.LinesAdded,
		LinesRemoved: result.LinesRemoved,
		CodeChurn:    result.CodeChurn,
		RiskLevel:    string(result.Risk.Overall.Level),
		RiskScore:    result.Risk.Overall.Value,
	}
	for _, fd := range result.FileDiffs {
		out.FileDiffs = append(out.FileDiffs, DiffFileOutput{
			Path:         fd.Path,
			LinesAdded:   fd.LinesAdded,
			LinesRemoved: fd.LinesRemoved,
			Patch:        fd.Patch,
		})
	}
	if result.Symbols != nil {
		out.Symbols = &SymbolsOutput{
			Added:    result.Symbols.Added,
			Removed:  result.Symbols.Removed,
			Modified: result.Symbols.Modified,
		}
	}
	return nil, out, nil
}

func symbolMetrics(inputs []SymbolMetricInput) []diffengine.SymbolMetric {
	metrics := make([]diffengine.SymbolMetric, 0, len(inputs))
	for _, in := range inputs {
		metrics = append(metrics, diffengine.SymbolMetric{
			Name:          in.Name,
			QualifiedName: in.QualifiedName,
			Kind:          in.Kind,
			FilePath:      in.FilePath,
			ContentHash:   in.ContentHash,
			Complexity:    in.Complexity,
		})
	}
	return metrics
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
	if err := s.snapshots().Delete(ctx, input.ID); err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil, DeleteOutput{
		Message: fmt.Sprintf("Deleted snapshot %d", input.ID),
	}, nil
}

func (s *Server) handleBranch(ctx context.Context, req *mcp.CallToolRequest, input BranchInput) (*mcp.CallToolResult, BranchOutput, error) {
	record, err := s.snapshots().Branch(ctx, input.BaseID, input.Name)
	if err != nil {
		return nil, BranchOutput{}, fmt.Errorf("failed to branch snapshot: %w", err)
	}
	return nil, BranchOutput{Snapshot: snapshotInfo(*record)}, nil
}

func (s *Server) handleMerge(ctx context.Context, req *mcp.CallToolRequest, input MergeInput) (*mcp.CallToolResult, MergeOutput, error) {
	record, err := s.snapshots().Merge(ctx, input.Branch1, input.Branch2, input.Name)
	if err != nil {
		return nil, MergeOutput{}, fmt.Errorf("failed to merge snapshots: %w", err)
	}
	return nil, MergeOutput{Snapshot: snapshotInfo(*record)}, nil
}
