package handler

import (
	_ "embed"
	"net/http"
)

//go:embed docs/asyncapi.yaml
var asyncAPISpec []byte

const asyncAPIPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>ITAM Chat AsyncAPI</title>
    <script src="https://unpkg.com/@asyncapi/web-component@1.16.0/lib/asyncapi-web-component.js"></script>
    <style>
      html, body { height: 100%; margin: 0; }
      asyncapi-component { height: 100%; }
    </style>
  </head>
  <body>
    <asyncapi-component schema-url="/asyncapi.yaml"></asyncapi-component>
  </body>
</html>
`

// HandleAsyncAPISpec serves the AsyncAPI document describing the websocket protocol.
func HandleAsyncAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(asyncAPISpec)
}

// HandleAsyncAPIPage serves a viewer page for the AsyncAPI document.
func HandleAsyncAPIPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(asyncAPIPage))
}
