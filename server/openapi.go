package server

import (
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/signature"
)

type apiDocument struct {
	OpenAPI    string             `yaml:"openapi"`
	Info       apiInfo            `yaml:"info"`
	Paths      map[string]apiPath `yaml:"paths"`
	Components apiComponents      `yaml:"components"`
}

type apiInfo struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version"`
}

type apiPath map[string]apiOperation

type apiOperation struct {
	OperationID string                 `yaml:"operationId"`
	Summary     string                 `yaml:"summary"`
	RequestBody *apiRequestBody        `yaml:"requestBody,omitempty"`
	Responses   map[string]apiResponse `yaml:"responses"`
}

type apiRequestBody struct {
	Required bool                    `yaml:"required"`
	Content  map[string]apiMediaType `yaml:"content"`
}

type apiResponse struct {
	Description string                  `yaml:"description"`
	Headers     map[string]apiHeader    `yaml:"headers,omitempty"`
	Content     map[string]apiMediaType `yaml:"content,omitempty"`
}

type apiHeader struct {
	Description string    `yaml:"description"`
	Schema      apiSchema `yaml:"schema"`
}

type apiMediaType struct {
	Schema apiSchema `yaml:"schema"`
}

type apiSchema struct {
	Ref                  string               `yaml:"$ref,omitempty"`
	Type                 string               `yaml:"type,omitempty"`
	Format               string               `yaml:"format,omitempty"`
	Enum                 []string             `yaml:"enum,omitempty"`
	Required             []string             `yaml:"required,omitempty"`
	Properties           map[string]apiSchema `yaml:"properties,omitempty"`
	AdditionalProperties *bool                `yaml:"additionalProperties,omitempty"`
}

type apiComponents struct {
	Schemas map[string]apiSchema `yaml:"schemas"`
}

func ref(name string) apiSchema {
	return apiSchema{Ref: "#/components/schemas/" + name}
}

func jsonContent(s apiSchema) map[string]apiMediaType {
	return map[string]apiMediaType{"application/json": {Schema: s}}
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}

	return out
}

// openAPIDocument describes the routes registered by routes.
func (s *Server) openAPIDocument() apiDocument {
	closed := false

	errorResponse := func(desc string) apiResponse {
		return apiResponse{Description: desc, Content: jsonContent(ref("Error"))}
	}

	paths := map[string]apiPath{
		"/v1/sign": {"post": {
			OperationID: "signRecord",
			Summary:     "Sign a record",
			RequestBody: &apiRequestBody{Required: true, Content: jsonContent(ref("Record"))},
			Responses: map[string]apiResponse{
				"200": {
					Description: "Signed envelope",
					Headers: map[string]apiHeader{
						headerRecordCID: {Description: "CIDv1 of the canonical record", Schema: apiSchema{Type: "string"}},
					},
					Content: jsonContent(ref("Envelope")),
				},
				"400": errorResponse("Record cannot be canonicalized"),
				"413": errorResponse("Request body too large"),
				"500": errorResponse("Signing failed"),
			},
		}},
		"/v1/verify": {"post": {
			OperationID: "verifyEnvelope",
			Summary:     "Verify a signed envelope",
			RequestBody: &apiRequestBody{Required: true, Content: jsonContent(ref("Envelope"))},
			Responses: map[string]apiResponse{
				"200": {Description: "Verification outcome", Content: jsonContent(ref("Outcome"))},
				"413": errorResponse("Request body too large"),
			},
		}},
		"/v1/public-key": {"get": {
			OperationID: "getPublicKey",
			Summary:     "Active public key",
			Responses: map[string]apiResponse{
				"200": {Description: "Public key", Content: jsonContent(ref("PublicKey"))},
				"503": errorResponse("No signing key loaded"),
			},
		}},
		"/healthz": {"get": {
			OperationID: "health",
			Summary:     "Health check",
			Responses: map[string]apiResponse{
				"200": {Description: "Healthy"},
				"503": {Description: "No signing key loaded"},
			},
		}},
	}

	if s.allowRotate {
		paths["/v1/keys/rotate"] = apiPath{"post": {
			OperationID: "rotateKey",
			Summary:     "Replace the signing key",
			RequestBody: &apiRequestBody{Content: jsonContent(apiSchema{
				Type:       "object",
				Properties: map[string]apiSchema{"bits": {Type: "integer"}},
			})},
			Responses: map[string]apiResponse{
				"200": {Description: "New public key", Content: jsonContent(ref("PublicKey"))},
				"400": errorResponse("Invalid key size"),
			},
		}}
	}

	return apiDocument{
		OpenAPI: "3.1.0",
		Info: apiInfo{
			Title:       "canonsig",
			Description: "Canonical JSON record signing and verification",
			Version:     "1.0.0",
		},
		Paths: paths,
		Components: apiComponents{Schemas: map[string]apiSchema{
			"Record": {Type: "object"},
			"Envelope": {
				Type:                 "object",
				Required:             []string{"record", "signature", "public_key", "hash_algorithm", "signature_scheme"},
				AdditionalProperties: &closed,
				Properties: map[string]apiSchema{
					"record":           ref("Record"),
					"signature":        {Type: "string", Format: "byte"},
					"public_key":       {Type: "string", Format: "byte"},
					"hash_algorithm":   {Type: "string", Enum: stringsOf(hashing.Algorithms())},
					"signature_scheme": {Type: "string", Enum: stringsOf(signature.Schemes())},
				},
			},
			"Outcome": {
				Type:     "object",
				Required: []string{"result"},
				Properties: map[string]apiSchema{
					"result": {Type: "string", Enum: []string{"valid", "invalid_signature", "malformed_envelope", "unsupported_algorithm"}},
					"reason": {Type: "string"},
				},
			},
			"PublicKey": {
				Type:     "object",
				Required: []string{"key_id", "public_key", "pem"},
				Properties: map[string]apiSchema{
					"key_id":     {Type: "string"},
					"public_key": {Type: "string", Format: "byte"},
					"pem":        {Type: "string"},
				},
			},
			"Error": {
				Type:     "object",
				Required: []string{"code", "message"},
				Properties: map[string]apiSchema{
					"code":    {Type: "string"},
					"message": {Type: "string"},
				},
			},
		}},
	}
}

// openAPICache renders the document once per Server.
type openAPICache struct {
	once sync.Once
	data []byte
	err  error
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	s.openAPI.once.Do(func() {
		s.openAPI.data, s.openAPI.err = yaml.Marshal(s.openAPIDocument())
	})

	if s.openAPI.err != nil {
		http.Error(w, "failed to serialize OpenAPI document as YAML", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openAPI.data)
}
