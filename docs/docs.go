// Package docs holds the OpenAPI document served under /swagger.
// Keep it in step with the handler annotations; `swag init -g cmd/server/main.go`
// regenerates it.
package docs

import "github.com/swaggo/swag/v2"

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
        "/health": {
            "get": {
                "description": "Reports version, uptime and the state of each dependency",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "operationId": "getHealth",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "A dependency is unavailable", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/webhook": {
            "post": {
                "description": "Applies one Jira issue event to the linked CRM entities",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive a tracker webhook",
                "operationId": "receiveTrackerWebhook",
                "parameters": [
                    {"type": "string", "description": "Delivery ID used for deduplication", "name": "X-Atlassian-Webhook-Identifier", "in": "header"},
                    {"description": "Jira webhook payload", "name": "event", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Malformed webhook payload", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "413": {"description": "Payload too large", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Webhook could not be applied", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/sync-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Re-pushes stored CRM status for every linked entity, then removes links whose issue is gone",
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Reconcile the company and drop orphaned links",
                "operationId": "syncAllCompany",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/sync-now": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs one synchronous reconciliation pass. Concurrent calls for the same company share the pass.",
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Reconcile the company now",
                "operationId": "syncNowCompany",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/cleanup-orphaned": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Removes links of the company whose tracker issue no longer exists",
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Drop orphaned links",
                "operationId": "cleanupOrphanedLinks",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Tracker unavailable", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/scheduler/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Reports whether the periodic loop runs, its interval and recent sweep summaries",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Get scheduler status",
                "operationId": "getSchedulerStatus",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/scheduler/sweep": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Sweeps every company synchronously, sharing an in-flight sweep. Returns aggregate counts only.",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Run a reconciliation sweep now",
                "operationId": "sweepAllCompanies",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SweepResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/entities/{type}/{id}/links": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Links an existing issue when issue_key is set, otherwise creates a new issue and links it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["links"],
                "summary": "Link an entity to an issue",
                "operationId": "linkEntityIssue",
                "parameters": [
                    {"enum": ["task", "project", "order", "client"], "type": "string", "description": "Entity type", "name": "type", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Entity ID", "name": "id", "in": "path", "required": true},
                    {"description": "Link request", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handler.LinkIssueRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Invalid path or body", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Entity or issue not found", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Issue already linked elsewhere", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Tracker unavailable", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/entities/{type}/{id}/links/{issue_key}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Removes one issue link from the entity. The issue itself is left untouched.",
                "tags": ["links"],
                "summary": "Remove a link",
                "operationId": "unlinkEntityIssue",
                "parameters": [
                    {"enum": ["task", "project", "order", "client"], "type": "string", "description": "Entity type", "name": "type", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Entity ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "example": "CRM-42", "description": "Issue key", "name": "issue_key", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "Link removed"},
                    "400": {"description": "Invalid path", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Entity or link not found", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/api/v1/sync/entities/{type}/{id}/push": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Transitions every linked issue to the entity's stored status. Per-link failures are reported in the body.",
                "produces": ["application/json"],
                "tags": ["links"],
                "summary": "Push an entity's status",
                "operationId": "pushEntityStatus",
                "parameters": [
                    {"enum": ["task", "project", "order", "client"], "type": "string", "description": "Entity type", "name": "type", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Entity ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.PushResponse"}},
                    "400": {"description": "Invalid path", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Entity not found", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        }
    },
    "definitions": {
        "dto.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "dto.Response": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/dto.ErrorInfo"}
            }
        },
        "handler.LinkIssueRequest": {
            "type": "object",
            "properties": {
                "issue_key": {"type": "string", "example": "CRM-42"},
                "project_key": {"type": "string", "maxLength": 32},
                "issue_type": {"type": "string", "maxLength": 64},
                "summary": {"type": "string", "maxLength": 255},
                "description": {"type": "string", "maxLength": 32000}
            }
        },
        "handler.LinkOutcomeResponse": {
            "type": "object",
            "properties": {
                "issue_key": {"type": "string"},
                "transitioned": {"type": "boolean"},
                "already_in_target": {"type": "boolean"},
                "error": {"type": "string"},
                "comment_error": {"type": "string"}
            }
        },
        "handler.PushResponse": {
            "type": "object",
            "properties": {
                "entity": {"type": "object"},
                "status": {"type": "string"},
                "transition": {"type": "string"},
                "skipped": {"type": "boolean"},
                "skip_reason": {"type": "string"},
                "succeeded": {"type": "integer"},
                "failed": {"type": "integer"},
                "links": {"type": "array", "items": {"$ref": "#/definitions/handler.LinkOutcomeResponse"}}
            }
        },
        "handler.SweepResponse": {
            "type": "object",
            "properties": {
                "started_at": {"type": "string", "format": "date-time"},
                "duration_ms": {"type": "integer"},
                "companies": {"type": "integer"},
                "failed_companies": {"type": "integer"},
                "interrupted": {"type": "boolean"},
                "entities": {"type": "integer"},
                "transitioned": {"type": "integer"},
                "failed_links": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Bearer token authentication. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CRM Sync API",
	Description:      "Keeps CRM entity status and Jira issues in step",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
