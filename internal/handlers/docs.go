package handlers

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed openapi.yaml
var openapiSpec []byte

// specETag identifies the embedded document so browsers can revalidate it.
var specETag = func() string {
	sum := sha256.Sum256(openapiSpec)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// swaggerUIVersion pins the Swagger UI bundle loaded by the docs page.
const swaggerUIVersion = "5.17.14"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>rackops API {{.Version}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@{{.UI}}/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@{{.UI}}/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "{{.SpecURL}}",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
      deepLinking: true,
      persistAuthorization: true,
    });
  </script>
</body>
</html>`))

// OpenAPISpec handles GET /openapi.yaml. A matching If-None-Match gets a 304.
func (h *Handler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", specETag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == specETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(openapiSpec)
}

// Docs handles GET /docs.
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	version := h.Version
	if version == "" {
		version = "dev"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsPage.Execute(w, struct{ Version, UI, SpecURL string }{version, swaggerUIVersion, "/openapi.yaml"}); err != nil {
		slog.Error("failed to render docs page", "error", err)
	}
}
