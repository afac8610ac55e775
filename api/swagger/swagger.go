package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Registro API",
        "description": "Resident and visit registration with per-person photo folders",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Records", "description": "Resident and visit registration"}
    ],
    "paths": {
        "/residents": {
            "post": {
                "tags": ["Records"],
                "summary": "Register a resident or retake their photos",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterResidentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Photos updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "National ID already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/visits": {
            "post": {
                "tags": ["Records"],
                "summary": "Register a visit or retake its photos",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterVisitRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Photos updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/visits/sweep": {
            "post": {
                "tags": ["Records"],
                "summary": "Remove expired visits and their folders",
                "responses": {
                    "200": {"description": "Sweep summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records": {
            "get": {
                "tags": ["Records"],
                "summary": "List residents and active visits",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/export": {
            "get": {
                "tags": ["Records"],
                "summary": "Export the active listing as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Rendered file"},
                    "400": {"description": "Unknown format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/{kind}/{id}": {
            "delete": {
                "tags": ["Records"],
                "summary": "Delete a record and its photo folder",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["resident", "visit"]},
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Deleted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Record not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/{kind}/{id}/photo": {
            "get": {
                "tags": ["Records"],
                "summary": "Serve a record's primary photo",
                "produces": ["image/jpeg"],
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["resident", "visit"]},
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Photo bytes"},
                    "404": {"description": "Record or photo not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterResidentRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "national_id": {"type": "string"},
                "photos": {
                    "type": "array",
                    "items": {"type": "string", "description": "Base64-encoded JPEG, optionally with a data URI prefix"}
                },
                "record_id": {"type": "integer", "description": "Existing record ID to retake photos for"}
            },
            "required": ["name", "national_id", "photos"]
        },
        "RegisterVisitRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "national_id": {"type": "string"},
                "photos": {
                    "type": "array",
                    "items": {"type": "string", "description": "Base64-encoded JPEG, optionally with a data URI prefix"}
                },
                "expires_at": {"type": "string", "description": "Expiry in YYYY-MM-DDTHH:MM local time"},
                "record_id": {"type": "integer", "description": "Existing record ID to retake photos for"}
            },
            "required": ["name", "national_id", "photos", "expires_at"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
