package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the portal gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>fgcbrasil-gateway - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document of the gateway surface.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "fgcbrasil-gateway", "version": "v0.1.0" },
  "components": {
    "securitySchemes": {
      "cookie": { "type": "apiKey", "in": "cookie", "name": "fgc_session" },
      "bearer": { "type": "http", "scheme": "bearer" }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Sign in with email and password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "session opened" }, "401": { "description": "translated provider error" } }
      }
    },
    "/auth/register": {
      "post": {
        "summary": "Create an account and its profile",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"nome":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"},"tipo":{"type":"string","enum":["jogador","fã","organizador"]}}}}}},
        "responses": { "201": { "description": "session opened" }, "400": { "description": "invalid form" }, "401": { "description": "translated provider error" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Sign out and forget the session", "responses": { "200": { "description": "signed out" }, "401": { "description": "not signed in" } } }
    },
    "/session": { "get": { "summary": "Current session snapshot", "responses": { "200": { "description": "snapshot" } } } },
    "/session/events": { "get": { "summary": "Server-sent snapshot stream", "responses": { "200": { "description": "text/event-stream" }, "401": { "description": "not signed in" } } } },
    "/nav": { "get": { "summary": "Navigation menu for the session", "responses": { "200": { "description": "menu items" } } } },
    "/views/{name}": {
      "get": {
        "summary": "Resolve a view through the authorization gate and load its data",
        "parameters": [
          { "name": "name", "in": "path", "required": true, "schema": { "type": "string" } },
          { "name": "org", "in": "query", "required": false, "schema": { "type": "string" } }
        ],
        "responses": { "200": { "description": "requested, resolved view and data" }, "502": { "description": "backend unavailable" } }
      }
    },
    "/actions/profile": { "post": { "summary": "Update own profile", "responses": { "200": { "description": "ack" } } } },
    "/actions/championships": { "post": { "summary": "Create championship", "responses": { "200": { "description": "ack" }, "400": { "description": "invalid form" }, "403": { "description": "forbidden" } } } },
    "/actions/championships/finalize": { "post": { "summary": "Finalize championship with the standard XP table", "responses": { "200": { "description": "ack" } } } },
    "/actions/championships/finalize-custom": { "post": { "summary": "Finalize championship with custom XP", "responses": { "200": { "description": "ack" } } } },
    "/actions/organizations": { "post": { "summary": "Create organization", "responses": { "200": { "description": "ack" } } } },
    "/actions/organizations/{id}": { "post": { "summary": "Update organization", "responses": { "200": { "description": "ack" } } } },
    "/actions/donations": { "post": { "summary": "Register sponsorship or fan bonus", "responses": { "200": { "description": "ack" } } } },
    "/actions/ranking/thresholds": { "post": { "summary": "Set ranking thresholds", "responses": { "200": { "description": "ack" } } } },
    "/actions/ranking/reset": { "post": { "summary": "Reset ranking (confirm required)", "responses": { "200": { "description": "ack" } } } },
    "/actions/rifa/entries": { "post": { "summary": "Add raffle entry", "responses": { "200": { "description": "ack" } } } },
    "/actions/rifa/reset": { "post": { "summary": "Reset raffle (confirm required)", "responses": { "200": { "description": "ack" } } } },
    "/actions/missions/open": { "post": { "summary": "Open mission link", "responses": { "200": { "description": "mission" } } } },
    "/actions/missions/complete": { "post": { "summary": "Confirm mission", "responses": { "200": { "description": "ack" } } } },
    "/actions/contributions": { "post": { "summary": "Fan contribution", "responses": { "200": { "description": "ack" } } } },
    "/actions/support": { "post": { "summary": "Send support ticket", "responses": { "200": { "description": "ack" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
