package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/hazyhaar/supplier-ingest/pkg/kit"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
)

// Shared request/response types used by both HTTP and MCP transports.

type profilesResponse struct {
	Profiles []profile.Info `json:"profiles"`
}

type detectReq struct {
	Filename string
}

type detectResponse struct {
	Filename    string `json:"filename"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`
}

// ingestReq carries either an uploaded body (HTTP) or a local path (MCP).
type ingestReq struct {
	Name string
	Body io.Reader
	Path string
}

var errEmptyFilename = errors.New("filename is required")

// endpoints groups the kit.Endpoints backed by one runner.
type endpoints struct {
	listProfiles   kit.Endpoint
	detectProvider kit.Endpoint
	ingestFile     kit.Endpoint
}

func newEndpoints(runner *pipeline.Runner, logger *slog.Logger) endpoints {
	if logger == nil {
		logger = slog.Default()
	}
	reg := runner.Registry()
	return endpoints{
		listProfiles:   kit.Logging(logger, "list_profiles")(listProfilesEndpoint(reg)),
		detectProvider: kit.Logging(logger, "detect_provider")(detectProviderEndpoint(reg)),
		ingestFile:     kit.Logging(logger, "ingest_file")(ingestFileEndpoint(runner)),
	}
}

func listProfilesEndpoint(reg *profile.Registry) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		return profilesResponse{Profiles: reg.List()}, nil
	}
}

func detectProviderEndpoint(reg *profile.Registry) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*detectReq)
		name := strings.TrimSpace(req.Filename)
		if name == "" {
			return nil, errEmptyFilename
		}
		p, err := reg.Detect(name)
		if err != nil {
			return nil, err
		}
		return detectResponse{Filename: name, Provider: p.ID, Description: p.Description}, nil
	}
}

// ingestFileEndpoint always returns the file result; a file-level abort is
// reported in the result, not as an endpoint error.
func ingestFileEndpoint(runner *pipeline.Runner) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*ingestReq)
		if req.Body != nil {
			if strings.TrimSpace(req.Name) == "" {
				return nil, errEmptyFilename
			}
			return runner.Process(ctx, req.Name, req.Body), nil
		}
		if strings.TrimSpace(req.Path) == "" {
			return nil, errors.New("path is required")
		}
		return runner.ProcessFile(ctx, req.Path), nil
	}
}
