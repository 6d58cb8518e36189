package api

import (
	"net/http"

	"github.com/tickerlab/finsight/internal/shell/api/openapi"
)

// buildOpenAPI registers every API surface with the spec generator. The
// router in Routes and this registration must stay in sync.
func buildOpenAPI() *openapi.Generator {
	gen := openapi.NewGenerator()

	gen.RegisterResource(openapi.ResourceInfo{
		Name:           "sessions",
		Model:          SessionResponse{},
		ListModel:      ListSessionsResponse{},
		CreateModel:    CreateSessionRequest{},
		SupportsList:   true,
		SupportsGet:    true,
		SupportsCreate: true,
		SupportsDelete: true,
	})
	gen.RegisterResource(openapi.ResourceInfo{
		Name:        "runs",
		Model:       RunResponse{},
		ListModel:   ListRunsResponse{},
		SupportsGet: true,
	})

	gen.RegisterOperation(openapi.OperationInfo{
		Method:       http.MethodPost,
		Path:         "/query",
		OperationID:  "query",
		Summary:      "Stream an answer as plain text",
		Tag:          "Query",
		RequestModel: QueryRequest{},
		ContentType:  "text/plain",
	})
	gen.RegisterOperation(openapi.OperationInfo{
		Method:       http.MethodPost,
		Path:         "/api/v1/sessions/{id}/query",
		OperationID:  "querySession",
		Summary:      "Stream a session run as server-sent events",
		Tag:          "Query",
		RequestModel: QueryRequest{},
		ContentType:  "text/event-stream",
	})
	gen.RegisterOperation(openapi.OperationInfo{
		Method:        http.MethodGet,
		Path:          "/api/v1/sessions/{id}/messages",
		OperationID:   "listSessionMessages",
		Summary:       "List session messages",
		Tag:           "Sessions",
		ResponseModel: ListMessagesResponse{},
	})
	gen.RegisterOperation(openapi.OperationInfo{
		Method:        http.MethodGet,
		Path:          "/api/v1/sessions/{id}/runs",
		OperationID:   "listSessionRuns",
		Summary:       "List session runs",
		Tag:           "Runs",
		ResponseModel: ListRunsResponse{},
	})

	return gen
}
