// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with `swag init -g cmd/api/main.go` after changing controller annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/media": {
            "get": {
                "description": "Paginated catalog listing. Anonymous callers see public assets, authenticated callers also see their own.",
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "List media",
                "parameters": [
                    {"type": "string", "description": "image, video, audio or document", "name": "category", "in": "query"},
                    {"type": "string", "description": "Uploader id", "name": "uploaded_by", "in": "query"},
                    {"type": "string", "description": "public or private", "name": "visibility", "in": "query"},
                    {"type": "boolean", "description": "Featured flag", "name": "featured", "in": "query"},
                    {"type": "string", "description": "Search in filename, caption and description", "name": "q", "in": "query"},
                    {"type": "integer", "description": "Page number (default 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (default 20, max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.ListResult"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Upload one or more files. Each file is classified, stored, processed and cataloged independently.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Upload media",
                "parameters": [
                    {"type": "file", "description": "Files to upload (repeatable)", "name": "files", "in": "formData", "required": true},
                    {"type": "string", "description": "public or private", "name": "visibility", "in": "formData"},
                    {"type": "string", "description": "Alt text applied to every file", "name": "alt_text", "in": "formData"},
                    {"type": "string", "description": "Caption applied to every file", "name": "caption", "in": "formData"},
                    {"type": "string", "description": "Description applied to every file", "name": "description", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/media.BatchResult"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": true}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/media.BatchResult"}}
                }
            }
        },
        "/api/media/events": {
            "get": {
                "description": "WebSocket stream of asset.created, asset.updated and asset.deleted events for public assets.",
                "tags": ["media"],
                "summary": "Live media events",
                "responses": {}
            }
        },
        "/api/media/export": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Spreadsheet of every asset matching the listing filters.",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["media"],
                "summary": "Export media inventory",
                "parameters": [
                    {"type": "string", "description": "image, video, audio or document", "name": "category", "in": "query"},
                    {"type": "string", "description": "public or private", "name": "visibility", "in": "query"},
                    {"type": "string", "description": "Search text", "name": "q", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/media/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Get media asset",
                "parameters": [{"type": "string", "description": "Asset ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.AssetResponse"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Removes the stored files and the catalog record.",
                "tags": ["media"],
                "summary": "Delete media asset",
                "parameters": [{"type": "string", "description": "Asset ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "description": "Only alt_text, caption, description, visibility and is_featured may be changed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Update media metadata",
                "parameters": [
                    {"type": "string", "description": "Asset ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to update", "name": "body", "in": "body", "required": true, "schema": {"type": "object", "additionalProperties": true}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.AssetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Reports catalog connectivity and storage root",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health Check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/uploads/{dir}/{file}": {
            "get": {
                "description": "Originals, optimized copies and thumbnails. Private assets require the owner or an elevated role.",
                "tags": ["media"],
                "summary": "Fetch a stored file",
                "parameters": [
                    {"type": "string", "description": "images, videos, audio, documents or thumbnails", "name": "dir", "in": "path", "required": true},
                    {"type": "string", "description": "Stored filename", "name": "file", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "media.AssetResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "url": {"type": "string"},
                "original_url": {"type": "string"},
                "thumbnail_url": {"type": "string"},
                "category": {"type": "string"},
                "mime_type": {"type": "string"},
                "original_filename": {"type": "string"},
                "file_size_bytes": {"type": "integer"},
                "width": {"type": "integer"},
                "height": {"type": "integer"},
                "duration_seconds": {"type": "integer"},
                "tags": {"type": "object", "additionalProperties": {"type": "string"}},
                "uploaded_by": {"type": "string"},
                "visibility": {"type": "string"},
                "is_featured": {"type": "boolean"},
                "alt_text": {"type": "string"},
                "caption": {"type": "string"},
                "description": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "media.BatchResult": {
            "type": "object",
            "properties": {
                "assets": {"type": "array", "items": {"$ref": "#/definitions/media.AssetResponse"}},
                "failed": {"type": "array", "items": {"$ref": "#/definitions/media.FileFailure"}}
            }
        },
        "media.FileFailure": {
            "type": "object",
            "properties": {
                "filename": {"type": "string"},
                "code": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "media.ListResult": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/media.AssetResponse"}},
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parish Media API",
	Description:      "Upload, processing and catalog service for parish media.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
