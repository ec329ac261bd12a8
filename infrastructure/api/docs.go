package api

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed openapi.json
var openapiDocument []byte

// documentServerURL is the placeholder server URL in openapi.json.
const documentServerURL = `"url": "//localhost:8080"`

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Meme Index API</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" charset="UTF-8"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({ url: %q, dom_id: '#swagger-ui', deepLinking: true });
        };
    </script>
</body>
</html>`

// DocsRouter serves Swagger UI and the OpenAPI document.
type DocsRouter struct {
	documentURL string
}

// NewDocsRouter creates a DocsRouter whose UI loads documentURL.
func NewDocsRouter(documentURL string) *DocsRouter {
	return &DocsRouter{documentURL: documentURL}
}

// Routes returns the documentation routes.
func (d *DocsRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", d.page)
	router.Get("/openapi.json", d.document)
	return router
}

func (d *DocsRouter) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, swaggerPage, d.documentURL)
}

// document rewrites the server URL to the requesting host so "Try it out"
// works behind proxies.
func (d *DocsRouter) document(w http.ResponseWriter, r *http.Request) {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	data := bytes.ReplaceAll(openapiDocument,
		[]byte(documentServerURL),
		[]byte(fmt.Sprintf(`"url": "%s://%s"`, scheme, host)),
	)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
