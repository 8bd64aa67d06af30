package mcpadapter

import "github.com/mark3labs/mcp-go/mcp"

var retrieveDocumentsTool = mcp.NewTool("retrieve_documents",
	mcp.WithDescription("Retrieve shift report fragments for a question. Dates in the question, or the dates argument, restrict results strictly to those report dates; an empty result means no matching evidence."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Question in Indonesian or English"),
	),
	mcp.WithArray("dates",
		mcp.Description("Optional report dates (YYYY-MM-DD or written forms such as '3 Maret 2025'). Overrides dates found in the query."),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithNumber("k",
		mcp.Description("Maximum number of fragments to return (default from server configuration)"),
	),
)

var listReportDatesTool = mcp.NewTool("list_report_dates",
	mcp.WithDescription("List the report dates present in the indexed corpus."),
)
