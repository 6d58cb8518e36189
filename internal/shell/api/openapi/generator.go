// Package openapi provides reflective OpenAPI 3.0 specification generation
// for the Finsight API.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 specification by reflecting on the
// registered resources and operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	resources   []ResourceInfo
	operations  []OperationInfo
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// ResourceInfo describes a REST resource for spec generation. Model is the
// item response struct, ListModel the list response struct and CreateModel
// the create request body; schemas are extracted from their fields.
type ResourceInfo struct {
	Name           string
	Model          interface{}
	ListModel      interface{}
	CreateModel    interface{}
	SupportsList   bool
	SupportsGet    bool
	SupportsCreate bool
	SupportsDelete bool
}

// OperationInfo describes a non-CRUD operation such as the streaming query
// endpoints. Path parameters are derived from {segments} in Path. A nil
// ResponseModel with a ContentType yields a raw string response schema.
type OperationInfo struct {
	Method        string
	Path          string
	OperationID   string
	Summary       string
	Tag           string
	RequestModel  interface{}
	ResponseModel interface{}
	ContentType   string
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Finsight API",
		version:     "1.0.0",
		description: "Multi-agent financial research API",
		servers:     []string{"http://localhost:8000"},
		resources:   make([]ResourceInfo, 0),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterResource adds a resource to the generator for spec generation.
func (g *Generator) RegisterResource(info ResourceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, info)
	g.cachedSpec = nil // Invalidate cache
}

// RegisterOperation adds a non-CRUD operation to the generator.
func (g *Generator) RegisterOperation(info OperationInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, info)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	g.addCommonSchemas(spec)

	for _, res := range g.resources {
		g.addResourceToSpec(spec, res)
	}

	// Custom operations may share a path, so path items are merged before
	// being set on the spec.
	items := make(map[string]*openapi3.PathItem)
	order := make([]string, 0, len(g.operations))
	for _, op := range g.operations {
		item, ok := items[op.Path]
		if !ok {
			item = &openapi3.PathItem{Parameters: pathParameters(op.Path)}
			items[op.Path] = item
			order = append(order, op.Path)
		}
		item.SetOperation(strings.ToUpper(op.Method), g.buildOperation(op))
	}
	for _, path := range order {
		spec.Paths.Set(path, items[path])
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schema Generation
// =============================================================================

// addCommonSchemas adds the shared error schema to the spec.
func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	spec.Components.Schemas["Error"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
				"code": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		},
	}
}

// addResourceToSpec adds paths and schemas for a resource.
func (g *Generator) addResourceToSpec(spec *openapi3.T, res ResourceInfo) {
	basePath := "/api/v1/" + res.Name
	schemaName := capitalize(singularize(res.Name))

	spec.Components.Schemas[schemaName] = g.extractSchema(res.Model)
	if res.ListModel != nil {
		spec.Components.Schemas[schemaName+"List"] = g.extractSchema(res.ListModel)
	}
	if res.CreateModel != nil {
		spec.Components.Schemas["Create"+schemaName+"Request"] = g.extractSchema(res.CreateModel)
	}

	collectionPath := &openapi3.PathItem{}

	if res.SupportsList {
		collectionPath.Get = g.createListOperation(res, schemaName)
	}
	if res.SupportsCreate {
		collectionPath.Post = g.createCreateOperation(res, schemaName)
	}
	if collectionPath.Get != nil || collectionPath.Post != nil {
		spec.Paths.Set(basePath, collectionPath)
	}

	itemPath := &openapi3.PathItem{Parameters: pathParameters(basePath + "/{id}")}

	if res.SupportsGet {
		itemPath.Get = g.createGetOperation(res, schemaName)
	}
	if res.SupportsDelete {
		itemPath.Delete = g.createDeleteOperation(res, schemaName)
	}
	if itemPath.Get != nil || itemPath.Delete != nil {
		spec.Paths.Set(basePath+"/{id}", itemPath)
	}
}

// extractSchema extracts an OpenAPI schema from a Go struct.
func (g *Generator) extractSchema(model interface{}) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
		}

		if propSchema := g.goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		// Handle time.Time specially
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(reflect.New(t).Interface())

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) createListOperation(res ResourceInfo, schemaName string) *openapi3.Operation {
	responses := &openapi3.Responses{}
	responses.Set("200", jsonResponseRef("List of "+res.Name, "#/components/schemas/"+schemaName+"List"))

	return &openapi3.Operation{
		OperationID: "list" + capitalize(res.Name),
		Summary:     "List " + res.Name,
		Tags:        []string{capitalize(res.Name)},
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: &openapi3.Parameter{
					Name: "limit",
					In:   "query",
					Schema: &openapi3.SchemaRef{
						Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Default: 100},
					},
				},
			},
			&openapi3.ParameterRef{
				Value: &openapi3.Parameter{
					Name: "offset",
					In:   "query",
					Schema: &openapi3.SchemaRef{
						Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Default: 0},
					},
				},
			},
		},
		Responses: responses,
	}
}

func (g *Generator) createGetOperation(res ResourceInfo, schemaName string) *openapi3.Operation {
	responses := &openapi3.Responses{}
	responses.Set("200", jsonResponseRef("The "+singularize(res.Name), "#/components/schemas/"+schemaName))
	responses.Set("404", errorResponseRef(capitalize(singularize(res.Name))+" not found"))

	return &openapi3.Operation{
		OperationID: "get" + schemaName,
		Summary:     "Get a " + singularize(res.Name),
		Tags:        []string{capitalize(res.Name)},
		Responses:   responses,
	}
}

func (g *Generator) createCreateOperation(res ResourceInfo, schemaName string) *openapi3.Operation {
	responses := &openapi3.Responses{}
	responses.Set("201", jsonResponseRef("The created "+singularize(res.Name), "#/components/schemas/"+schemaName))

	return &openapi3.Operation{
		OperationID: "create" + schemaName,
		Summary:     "Create a " + singularize(res.Name),
		Tags:        []string{capitalize(res.Name)},
		RequestBody: &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithJSONSchemaRef(&openapi3.SchemaRef{
				Ref: "#/components/schemas/Create" + schemaName + "Request",
			}),
		},
		Responses: responses,
	}
}

func (g *Generator) createDeleteOperation(res ResourceInfo, schemaName string) *openapi3.Operation {
	responses := &openapi3.Responses{}
	responses.Set("204", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(capitalize(singularize(res.Name)) + " deleted"),
	})
	responses.Set("404", errorResponseRef(capitalize(singularize(res.Name))+" not found"))

	return &openapi3.Operation{
		OperationID: "delete" + schemaName,
		Summary:     "Delete a " + singularize(res.Name),
		Tags:        []string{capitalize(res.Name)},
		Responses:   responses,
	}
}

func (g *Generator) buildOperation(op OperationInfo) *openapi3.Operation {
	contentType := op.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	var schema *openapi3.SchemaRef
	if op.ResponseModel != nil {
		schema = g.extractSchema(op.ResponseModel)
	} else {
		schema = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
	}

	responses := &openapi3.Responses{}
	responses.Set("200", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(op.Summary).
			WithContent(openapi3.NewContentWithSchemaRef(schema, []string{contentType})),
	})

	operation := &openapi3.Operation{
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Responses:   responses,
	}
	if op.Tag != "" {
		operation.Tags = []string{op.Tag}
	}
	if op.RequestModel != nil {
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithJSONSchemaRef(g.extractSchema(op.RequestModel)),
		}
	}
	return operation
}

// =============================================================================
// Helpers
// =============================================================================

// pathParameters derives string path parameters from {segments} in a path.
func pathParameters(path string) openapi3.Parameters {
	var params openapi3.Parameters
	for _, segment := range strings.Split(path, "/") {
		if !strings.HasPrefix(segment, "{") || !strings.HasSuffix(segment, "}") {
			continue
		}
		params = append(params, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:     strings.Trim(segment, "{}"),
				In:       "path",
				Required: true,
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		})
	}
	return params
}

func jsonResponseRef(description, ref string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithJSONSchemaRef(&openapi3.SchemaRef{Ref: ref}),
	}
}

func errorResponseRef(description string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/Error"}),
	}
}

// capitalize uppercases the first letter.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize performs basic singularization (removes trailing 's').
func singularize(s string) string {
	if strings.HasSuffix(s, "ies") {
		return s[:len(s)-3] + "y"
	}
	if strings.HasSuffix(s, "es") {
		return s[:len(s)-2]
	}
	if strings.HasSuffix(s, "s") {
		return s[:len(s)-1]
	}
	return s
}
