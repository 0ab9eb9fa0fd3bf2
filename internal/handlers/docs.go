package handlers

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiSpec []byte

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "{{.SpecURL}}",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
      deepLinking: true,
    });
  </script>
</body>
</html>`))

// withVersion returns spec with info.version replaced by version.
func withVersion(spec []byte, version string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse openapi: empty document")
	}
	info := mappingValue(doc.Content[0], "info")
	if info == nil {
		return nil, fmt.Errorf("parse openapi: no info block")
	}
	v := mappingValue(info, "version")
	if v == nil {
		return nil, fmt.Errorf("parse openapi: no info.version")
	}
	v.Value = version
	v.Style = yaml.DoubleQuotedStyle

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// OpenAPISpec handles GET /openapi.yaml and serves the OpenAPI document
// stamped with the running version. Falls back to the embedded document when
// no version is set.
func (h *Handler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := openapiSpec
	if h.Version != "" {
		h.specOnce.Do(func() {
			b, err := withVersion(openapiSpec, h.Version)
			if err != nil {
				slog.Error("stamp openapi version", "error", err)
				return
			}
			h.spec = b
		})
		if h.spec != nil {
			spec = h.spec
		}
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(spec)
}

// Docs handles GET /docs with the Swagger UI page.
func Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := docsPage.Execute(w, struct{ Title, SpecURL string }{"hwportal API Docs", "/openapi.yaml"})
	if err != nil {
		slog.Error("render docs page", "error", err)
	}
}
