package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/padron/pkg/esdate"
	"github.com/hazyhaar/padron/pkg/export"
	"github.com/hazyhaar/padron/pkg/importer"
	"github.com/hazyhaar/padron/pkg/kit"
	"github.com/hazyhaar/padron/pkg/pipeline"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/series"
	"github.com/hazyhaar/padron/pkg/table"
)

// Shared request/response types used by both HTTP and MCP transports.

type normalizeReq struct {
	Label          string
	ArtifactPrefix int
}

type normalizeResponse struct {
	Label   string       `json:"label"`
	Cleaned string       `json:"cleaned"`
	Key     province.Key `json:"key"`
}

type dateReq struct {
	Label string
}

type dateResponse struct {
	Label string `json:"label"`
	Date  string `json:"date"`
}

type datasetReq struct {
	ID string
}

type nationalReq struct {
	Measure string
	Gender  table.Gender
}

type nationalResponse struct {
	Measure string          `json:"measure"`
	Gender  table.Gender    `json:"gender"`
	Points  []nationalPoint `json:"points"`
}

type nationalPoint struct {
	Date  string       `json:"date"`
	Year  int          `json:"year"`
	Value series.Value `json:"value"`
}

type mapReq struct {
	Measure string
	Gender  table.Gender
	Column  string
}

type provincesResponse struct {
	Provinces []province.Province `json:"provinces"`
}

type datasetsResponse struct {
	Datasets []pipeline.DatasetInfo `json:"datasets"`
}

type sourcesResponse struct {
	Sources []importer.Entry `json:"sources"`
}

// endpoints holds one kit.Endpoint per action, wrapped with the common
// middlewares.
type endpoints struct {
	normalize  kit.Endpoint
	parseDate  kit.Endpoint
	provinces  kit.Endpoint
	datasets   kit.Endpoint
	sources    kit.Endpoint
	provincial kit.Endpoint
	national   kit.Endpoint
	provMap    kit.Endpoint
	categories kit.Endpoint
	yearly     kit.Endpoint
	summaries  kit.Endpoint
	heatmap    kit.Endpoint
	pyramid    kit.Endpoint
}

func newEndpoints(s *Server) *endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.RequestID(), kit.Logging(s.logger, name))(ep)
	}
	return &endpoints{
		normalize:  wrap("normalize", normalizeEndpoint(s.pipeline.Registry())),
		parseDate:  wrap("parse_date", parseDateEndpoint()),
		provinces:  wrap("provinces", provincesEndpoint(s.pipeline.Registry())),
		datasets:   wrap("datasets", datasetsEndpoint(s.pipeline)),
		sources:    wrap("sources", sourcesEndpoint(s.catalog)),
		provincial: wrap("provincial", provincialEndpoint(s.pipeline)),
		national:   wrap("national", nationalEndpoint(s.pipeline)),
		provMap:    wrap("map", mapEndpoint(s.pipeline)),
		categories: wrap("categories", categoriesEndpoint(s.pipeline)),
		yearly:     wrap("yearly", yearlyEndpoint(s.pipeline)),
		summaries:  wrap("summaries", summariesEndpoint(s.pipeline)),
		heatmap:    wrap("heatmap", heatmapEndpoint(s.pipeline)),
		pyramid:    wrap("pyramid", pyramidEndpoint(s.pipeline)),
	}
}

var (
	errNoCatalog = errors.New("no source catalog configured")
	errBadDate   = errors.New("not a Spanish date")
)

func normalizeEndpoint(reg *province.Registry) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*normalizeReq)
		if req.Label == "" {
			return nil, fmt.Errorf("%w: empty label", errBadRequest)
		}
		if req.ArtifactPrefix < 0 {
			return nil, fmt.Errorf("%w: negative artifact prefix", errBadRequest)
		}
		key, err := province.NewNormalizer(reg, req.ArtifactPrefix).Normalize(req.Label)
		if err != nil {
			return nil, err
		}
		return normalizeResponse{Label: req.Label, Cleaned: province.Clean(req.Label, req.ArtifactPrefix), Key: key}, nil
	}
}

func parseDateEndpoint() kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*dateReq)
		t, ok := esdate.Parse(req.Label)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errBadDate, req.Label)
		}
		return dateResponse{Label: req.Label, Date: t.Format(time.DateOnly)}, nil
	}
}

func provincesEndpoint(reg *province.Registry) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		keys := reg.Keys()
		out := make([]province.Province, 0, len(keys))
		for _, k := range keys {
			p, _ := reg.Get(k)
			out = append(out, p)
		}
		return provincesResponse{Provinces: out}, nil
	}
}

func datasetsEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		return datasetsResponse{Datasets: p.Datasets()}, nil
	}
}

func sourcesEndpoint(cat *importer.Catalog) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if cat == nil {
			return nil, errNoCatalog
		}
		entries, err := cat.List()
		if err != nil {
			return nil, err
		}
		return sourcesResponse{Sources: entries}, nil
	}
}

func provincialEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		return p.Provincial(request.(*datasetReq).ID)
	}
}

func nationalEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*nationalReq)
		s, err := p.National(req.Measure, req.Gender)
		if err != nil {
			return nil, err
		}
		resp := nationalResponse{Measure: req.Measure, Gender: req.Gender, Points: make([]nationalPoint, 0, s.Len())}
		for _, pt := range s.Points {
			resp.Points = append(resp.Points, nationalPoint{Date: pt.Date.Format(time.DateOnly), Year: pt.Date.Year(), Value: pt.Value})
		}
		return resp, nil
	}
}

func mapEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*mapReq)
		return p.Map(req.Measure, req.Gender, req.Column)
	}
}

func categoriesEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		return p.Categories(request.(*datasetReq).ID)
	}
}

func yearlyEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		records, err := p.Yearly()
		if err != nil {
			return nil, err
		}
		return export.Yearly(records), nil
	}
}

func summariesEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		s, err := p.Summaries()
		if err != nil {
			return nil, err
		}
		return export.Summaries(s), nil
	}
}

func heatmapEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		return p.Heatmap()
	}
}

func pyramidEndpoint(p *pipeline.Pipeline) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		return p.Pyramid(request.(*datasetReq).ID)
	}
}
