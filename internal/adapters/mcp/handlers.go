package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

type retrieveResponse struct {
	Strategy    domain.Strategy `json:"strategy"`
	TargetDates []string        `json:"target_dates"`
	NoEvidence  bool            `json:"no_evidence"`
	Degraded    []string        `json:"degraded,omitempty"`
	Fragments   []fragmentView  `json:"fragments"`
}

type fragmentView struct {
	Text  string  `json:"text"`
	File  string  `json:"file"`
	Date  string  `json:"date,omitempty"`
	Unit  string  `json:"unit,omitempty"`
	Shift string  `json:"shift,omitempty"`
	Page  string  `json:"page,omitempty"`
	Score float64 `json:"score"`
}

func (s *Server) handleRetrieveDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	k := request.GetInt("k", 0)
	if k < 0 {
		return mcp.NewToolResultError("k must not be negative"), nil
	}
	k = min(k, s.maxK)

	result, err := s.retriever.RetrieveWith(ctx, domain.RetrievalRequest{
		Question: query,
		Dates:    request.GetStringSlice("dates", nil),
		Final:    k,
	})
	if err != nil {
		return mcp.NewToolResultError(describeFailure(err)), nil
	}

	resp := retrieveResponse{
		Strategy:    result.Query.Strategy,
		TargetDates: result.Query.Dates,
		NoEvidence:  result.NoEvidence,
		Degraded:    result.Degraded,
		Fragments:   make([]fragmentView, 0, len(result.Fragments)),
	}
	for _, f := range result.Fragments {
		resp.Fragments = append(resp.Fragments, fragmentView{
			Text:  f.Text,
			File:  f.Metadata.File,
			Date:  f.Metadata.Date,
			Unit:  f.Metadata.Unit,
			Shift: f.Metadata.Shift,
			Page:  f.Metadata.Page,
			Score: f.Score,
		})
	}
	return jsonResult(resp)
}

func (s *Server) handleListReportDates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dates, err := s.retriever.AvailableDates(ctx)
	if err != nil {
		return mcp.NewToolResultError(describeFailure(err)), nil
	}
	return jsonResult(dates)
}

// describeFailure keeps "no evidence" and "temporarily unavailable" apart for
// the caller.
func describeFailure(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return fmt.Sprintf("invalid request: %v", err)
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrCorpusUnavailable):
		return fmt.Sprintf("retrieval temporarily unavailable: %v", err)
	default:
		return fmt.Sprintf("retrieval failed: %v", err)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
