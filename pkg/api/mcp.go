package api

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/padron/pkg/kit"
	"github.com/hazyhaar/padron/pkg/table"
)

// RegisterMCPTools registers the pipeline tools on an MCP server. They share
// their endpoints with the HTTP routes.
func (s *Server) RegisterMCPTools(srv *server.MCPServer) {
	ep := s.ep

	kit.RegisterMCPTool(srv, mcp.NewTool("normalize_province",
		mcp.WithDescription("Resolve an INE province label (e.g. \"46 Valencia/València\", \"15 Coruña, A\") to its canonical province key."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Province label as found in an INE export")),
		mcp.WithNumber("artifact_prefix", mcp.Description("Characters to drop after the numeric code (default 0)")),
	), ep.normalize, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		label, err := stringArg(args, "label")
		if err != nil {
			return nil, err
		}
		prefix, _ := args["artifact_prefix"].(float64)
		return &normalizeReq{Label: label, ArtifactPrefix: int(prefix)}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("parse_spanish_date",
		mcp.WithDescription("Parse a long-form Spanish date such as \"1 de julio de 2023\"."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Date text")),
	), ep.parseDate, func(req mcp.CallToolRequest) (any, error) {
		label, err := stringArg(req.GetArguments(), "label")
		if err != nil {
			return nil, err
		}
		return &dateReq{Label: label}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("list_datasets",
		mcp.WithDescription("List the datasets of the manifest with their kind, measure, gender and file availability."),
	), ep.datasets, noArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("provincial_table",
		mcp.WithDescription("Load a per-province dataset: one row per province key, one column per period."),
		mcp.WithString("dataset", mcp.Required(), mcp.Description("Dataset id from list_datasets")),
	), ep.provincial, datasetArg)

	kit.RegisterMCPTool(srv, mcp.NewTool("national_series",
		mcp.WithDescription("Sum a provincial measure across provinces into a national yearly series."),
		mcp.WithString("measure", mcp.Required(), mcp.Description("Measure name, e.g. population")),
		mcp.WithString("gender", mcp.Description("total (default), male or female")),
	), ep.national, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		measure, err := stringArg(args, "measure")
		if err != nil {
			return nil, err
		}
		gender, _ := args["gender"].(string)
		g, err := table.ParseGender(gender)
		if err != nil {
			return nil, err
		}
		return &nationalReq{Measure: measure, Gender: g}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("province_map",
		mcp.WithDescription("Values of one period column for every province in a gender variant of a measure, with the columns that differ between variants."),
		mcp.WithString("measure", mcp.Required(), mcp.Description("Measure name, e.g. population")),
		mcp.WithString("gender", mcp.Description("total (default), male or female")),
		mcp.WithString("column", mcp.Description("Period column label; defaults to the first column")),
	), ep.provMap, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		measure, err := stringArg(args, "measure")
		if err != nil {
			return nil, err
		}
		gender, _ := args["gender"].(string)
		g, err := table.ParseGender(gender)
		if err != nil {
			return nil, err
		}
		column, _ := args["column"].(string)
		return &mapReq{Measure: measure, Gender: g, Column: column}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("category_series",
		mcp.WithDescription("Load a per-category dataset as one dated series per category."),
		mcp.WithString("dataset", mcp.Required(), mcp.Description("Dataset id from list_datasets")),
	), ep.categories, datasetArg)

	kit.RegisterMCPTool(srv, mcp.NewTool("yearly_table",
		mcp.WithDescription("Unified births, deaths, immigrants and population table by date."),
	), ep.yearly, noArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("yearly_summaries",
		mcp.WithDescription("Per-year means of the unified table with natural balance (births minus deaths)."),
	), ep.summaries, noArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("age_pyramid",
		mcp.WithDescription("Male and female population in five-year age bands for one pyramid dataset."),
		mcp.WithString("dataset", mcp.Required(), mcp.Description("Dataset id from list_datasets")),
	), ep.pyramid, datasetArg)
}

func noArgs(mcp.CallToolRequest) (any, error) { return nil, nil }

func datasetArg(req mcp.CallToolRequest) (any, error) {
	id, err := stringArg(req.GetArguments(), "dataset")
	if err != nil {
		return nil, err
	}
	return &datasetReq{ID: id}, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, _ := args[name].(string)
	if v == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return v, nil
}
