// Package docs registers the dropstack OpenAPI document with swag so gofiber/swagger can serve it.
// Keep in sync with the handler annotations in internal/http/handler (swag init -g cmd/dropstack/serve.go).
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/api/documents": {
            "get": {
                "tags": ["documents"],
                "summary": "List the caller's documents",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "1-based page", "name": "page", "in": "query"},
                    {"type": "integer", "description": "page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.DocumentListResult"}}
                }
            },
            "post": {
                "description": "multipart/form-data with a \"file\" part and an optional \"metadata\" JSON part {Title, MimeType, Tags}.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload a document",
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "name": "metadata", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Document"}}
                }
            }
        },
        "/api/documents/{id}": {
            "get": {
                "tags": ["documents"],
                "summary": "Read one document's metadata",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Document"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "put": {
                "tags": ["documents"],
                "summary": "Replace a document's title and tags at an expected version",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "document id", "name": "id", "in": "path", "required": true},
                    {"description": "new fields and expected version", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.UpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Document"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "delete": {
                "tags": ["documents"],
                "summary": "Delete a document and its content",
                "parameters": [{"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/documents/{id}/content": {
            "get": {
                "tags": ["documents"],
                "summary": "Stream a document's content",
                "produces": ["application/octet-stream"],
                "parameters": [{"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "file"}}}
            }
        },
        "/api/documents/{id}/checkin": {
            "post": {
                "tags": ["documents"],
                "summary": "Set a document's category at an expected version",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "document id", "name": "id", "in": "path", "required": true},
                    {"description": "category and expected version", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.CheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Document"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/documents/{id}/audits": {
            "get": {
                "tags": ["documents"],
                "summary": "List a document's audit entries, newest first",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.DocumentAudit"}}}}
            }
        }
    },
    "definitions": {
        "handler.errorEnvelope": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {"error": {"$ref": "#/definitions/handler.errorEnvelope"}, "request_id": {"type": "string"}}
        },
        "model.Document": {
            "type": "object",
            "properties": {
                "Bucket": {"type": "string"},
                "CategoryCode": {"type": "string"},
                "CheckedInAt": {"type": "string"},
                "CheckedInBy": {"type": "string"},
                "CreatedAt": {"type": "string"},
                "ETag": {"type": "string"},
                "Id": {"type": "string"},
                "MimeType": {"type": "string"},
                "ObjectKey": {"type": "string"},
                "Size": {"type": "integer"},
                "Tags": {"type": "array", "items": {"type": "string"}},
                "Title": {"type": "string"},
                "UpdatedAt": {"type": "string"},
                "Version": {"type": "integer"}
            }
        },
        "model.DocumentAudit": {
            "type": "object",
            "properties": {
                "At": {"type": "string"},
                "By": {"type": "string"},
                "DocumentId": {"type": "string"},
                "Id": {"type": "string"},
                "Payload": {"type": "object", "additionalProperties": true},
                "Type": {"type": "string"}
            }
        },
        "service.CheckInRequest": {
            "type": "object",
            "properties": {"CategoryCode": {"type": "string"}, "Version": {"type": "integer"}}
        },
        "service.DocumentListResult": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/model.Document"}},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "service.UpdateRequest": {
            "type": "object",
            "properties": {
                "Tags": {"type": "array", "items": {"type": "string"}},
                "Title": {"type": "string"},
                "Version": {"type": "integer"}
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
	Title:            "dropstack API",
	Description:      "Owner-scoped document storage with optimistic concurrency and an audit trail.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
