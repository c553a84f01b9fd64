// Package openapi serves the API description in YAML and JSON.
package openapi

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/apperrors"
)

// SpecPathEnv points at a YAML file that replaces the embedded description.
const SpecPathEnv = "OPENAPI_SPEC_PATH"

//go:embed metalookup.v1.yaml
var embeddedSpec []byte

type document struct {
	yaml []byte
	json []byte
}

var embeddedDocument = sync.OnceValues(func() (document, error) {
	return parseDocument(embeddedSpec)
})

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveDocument(false)))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveDocument(true)))
}

func parseDocument(raw []byte) (document, error) {
	var parsed any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return document{}, err
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return document{}, err
	}
	return document{yaml: raw, json: encoded}, nil
}

// currentDocument re-reads an override file on every call so edits show up
// without a restart.
func currentDocument() (document, error) {
	path := os.Getenv(SpecPathEnv)
	if path == "" {
		return embeddedDocument()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	return parseDocument(raw)
}

func serveDocument(asJSON bool) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		doc, err := currentDocument()
		if err != nil {
			return apperrors.NewInternalError("Failed to load OpenAPI description")
		}

		body, contentType := doc.yaml, "text/yaml; charset=utf-8"
		if asJSON {
			body, contentType = doc.json, "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return nil
	}
}
