// Package docs holds the OpenAPI description served at /swagger. It follows
// the layout produced by swag init and is kept in step with the godoc
// annotations on the handlers.
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
        "/public/issues": {
            "post": {
                "description": "Opens an issue in automatic mode. A chat may hold one non-closed issue at a time.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Public"],
                "summary": "Open an issue",
                "operationId": "createIssue",
                "parameters": [
                    {"description": "Requester", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateIssueRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "400": {"description": "Invalid body, reserved username or issue already open", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/public/issues/{chat_id}": {
            "get": {
                "description": "Returns the chat's open or manual issue.",
                "produces": ["application/json"],
                "tags": ["Public"],
                "summary": "Current issue of a chat",
                "operationId": "getActiveIssue",
                "parameters": [
                    {"type": "string", "example": "123456789", "description": "Requester chat id", "name": "chat_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "404": {"description": "No active issue", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/public/issues/{id}/messages": {
            "post": {
                "description": "Appends the message. While the issue is open the AI responder answers it and the reply is returned;\nin manual mode reply is null and admins are notified instead.\nIdempotency-Key replays the stored result instead of generating a second reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Public"],
                "summary": "Send a requester message",
                "operationId": "postUserMessage",
                "parameters": [
                    {"type": "string", "example": "tg-42-1001", "description": "Key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PostUserMessageResponse"}},
                    "400": {"description": "Empty or oversized message", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Issue is closed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Responder or store failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/public/issues/{id}/manual": {
            "put": {
                "description": "Moves an open issue to manual mode; registered admins are notified.",
                "produces": ["application/json"],
                "tags": ["Public"],
                "summary": "Request a human",
                "operationId": "escalateIssue",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "400": {"description": "Issue is not open", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/public/issues/{id}/close": {
            "post": {
                "description": "Closes an open or manual issue. Mounted in both namespaces.",
                "produces": ["application/json"],
                "tags": ["Public", "Private"],
                "summary": "Close an issue",
                "operationId": "closeIssue",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "400": {"description": "Issue already closed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/admins": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Registered admins",
                "operationId": "listAdmins",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Admin"}}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Registered admins receive manual-mode notifications.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Register an admin",
                "operationId": "registerAdmin",
                "parameters": [
                    {"description": "Admin", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterAdminRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Admin"}},
                    "400": {"description": "Invalid body or already registered", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/issues": {
            "get": {
                "description": "Newest first. Filter with status=open|manual|closed.",
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "List issues",
                "operationId": "listIssues",
                "parameters": [
                    {"enum": ["open", "manual", "closed"], "type": "string", "description": "Status filter", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Issue"}}},
                    "400": {"description": "Unknown status", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/issues/manual": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Issues waiting for a human",
                "operationId": "listManualIssues",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Issue"}}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/issues/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Get an issue",
                "operationId": "getIssue",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/issues/{id}/messages": {
            "get": {
                "description": "Messages in timestamp order.",
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Issue thread",
                "operationId": "listMessages",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Appends an Admin message. An open issue switches to manual mode in the same step; the requester is notified.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Private"],
                "summary": "Reply as admin",
                "operationId": "postAdminMessage",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true},
                    {"description": "Reply", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Message"}},
                    "400": {"description": "Empty message or issue closed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/issues/{id}/close": {
            "post": {
                "description": "Closes an open or manual issue. Mounted in both namespaces.",
                "produces": ["application/json"],
                "tags": ["Public", "Private"],
                "summary": "Close an issue",
                "operationId": "closeIssuePrivate",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Issue id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Issue"}},
                    "400": {"description": "Issue already closed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Issue not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/faq": {
            "get": {
                "produces": ["application/json"],
                "tags": ["FAQ"],
                "summary": "FAQ entries",
                "operationId": "listFAQ",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.FAQResponse"}}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "The question is embedded on write; if embedding fails the entry is stored but not searchable.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["FAQ"],
                "summary": "Add an FAQ entry",
                "operationId": "createFAQ",
                "parameters": [
                    {"description": "Entry", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.FAQRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.FAQResponse"}},
                    "400": {"description": "Missing question or answer", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/private/faq/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["FAQ"],
                "summary": "One FAQ entry",
                "operationId": "getFAQ",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Entry id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.FAQResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["FAQ"],
                "summary": "Replace an FAQ entry",
                "operationId": "updateFAQ",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Entry id", "name": "id", "in": "path", "required": true},
                    {"description": "Entry", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.FAQRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.FAQResponse"}},
                    "400": {"description": "Missing question or answer", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["FAQ"],
                "summary": "Delete an FAQ entry",
                "operationId": "deleteFAQ",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Entry id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Admin": {
            "type": "object",
            "properties": {
                "chat_id": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "domain.Issue": {
            "type": "object",
            "properties": {
                "chat_id": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "manual", "closed"]},
                "updated_at": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "issue_id": {"type": "string"},
                "sender": {"type": "string"},
                "text": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handlers.CreateIssueRequest": {
            "type": "object",
            "required": ["chat_id", "username"],
            "properties": {
                "chat_id": {"type": "string", "example": "123456789"},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"description": "Stable, machine-readable code", "type": "string", "example": "not_found"},
                "message": {"description": "Human-readable reason", "type": "string", "example": "issue not found"},
                "request_id": {"description": "Echo of X-Request-ID for log correlation", "type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.FAQRequest": {
            "type": "object",
            "required": ["answer", "question"],
            "properties": {
                "answer": {"type": "string", "example": "Use the 'Forgot password' link on the sign-in page."},
                "question": {"type": "string", "example": "How do I reset my password?"}
            }
        },
        "handlers.FAQResponse": {
            "type": "object",
            "properties": {
                "answer": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "question": {"type": "string"},
                "searchable": {"type": "boolean"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.PostMessageRequest": {
            "type": "object",
            "required": ["message"],
            "properties": {
                "message": {"type": "string", "example": "My order has not arrived"}
            }
        },
        "handlers.PostUserMessageResponse": {
            "type": "object",
            "properties": {
                "message": {"$ref": "#/definitions/domain.Message"},
                "reply": {"$ref": "#/definitions/domain.Message"}
            }
        },
        "handlers.RegisterAdminRequest": {
            "type": "object",
            "required": ["chat_id", "username"],
            "properties": {
                "chat_id": {"type": "string", "example": "987654321"},
                "username": {"type": "string", "example": "support-bob"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Support Desk API",
	Description:      "Issue tracking behind the Telegram support bots: AI-answered conversations with escalation to human admins.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
