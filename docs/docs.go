// Package docs holds the Swagger 2.0 document served under /swagger/*.
// It is kept by hand in the layout swag emits and follows the @Router annotations
// on the handlers in internal/http/handler.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/contact": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["contact"],
                "summary": "Submit the public contact form",
                "parameters": [
                    {"type": "string", "name": "cf-turnstile-response", "in": "formData", "required": true},
                    {"type": "string", "name": "name", "in": "formData", "required": true},
                    {"type": "string", "name": "email", "in": "formData", "required": true},
                    {"type": "string", "name": "details", "in": "formData", "required": true},
                    {"type": "string", "name": "lang", "in": "formData"},
                    {"type": "file", "name": "photos", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.submitResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.verificationPayload"}},
                    "405": {"description": "Method Not Allowed", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/contact/list": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List recent submissions",
                "parameters": [
                    {"type": "string", "name": "token", "in": "query", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/contact/get": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get one submission",
                "parameters": [
                    {"type": "string", "name": "token", "in": "query", "required": true},
                    {"type": "string", "name": "id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/contact/file": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["admin"],
                "summary": "Download a stored photo",
                "parameters": [
                    {"type": "string", "name": "token", "in": "query", "required": true},
                    {"type": "string", "name": "key", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["ops"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "error": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "handler.verificationPayload": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "error": {"type": "string"},
                "codes": {"type": "array", "items": {"type": "string"}},
                "request_id": {"type": "string"}
            }
        },
        "handler.submitResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Contact Intake API",
	Description:      "Public contact form intake with photo uploads and admin retrieval.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
