package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academic Records API",
        "description": "Grade averages, submission deadlines, deferred tasks and term summaries.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Assessments",
            "description": "Assessment declarations and submission deadlines"
        },
        {
            "name": "Scores",
            "description": "Grade entry"
        },
        {
            "name": "Averages",
            "description": "Component, unit and term averages"
        },
        {
            "name": "Tasks",
            "description": "Deferred task scheduling"
        },
        {
            "name": "Summaries",
            "description": "Class term summaries and artifacts"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check, pings the database",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "Database unreachable"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/assessments": {
            "get": {
                "tags": [
                    "Assessments"
                ],
                "summary": "List assessments",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "classId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "componentId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "sessionId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "query",
                        "type": "string"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Assessments"
                ],
                "summary": "Declare an assessment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateAssessmentRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/assessments/{id}": {
            "get": {
                "tags": [
                    "Assessments"
                ],
                "summary": "Get assessment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        },
        "/api/v1/assessments/{id}/extend-deadline": {
            "post": {
                "tags": [
                    "Assessments"
                ],
                "summary": "Extend the submission deadline",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExtendDeadlineRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/assessments/{id}/authorize-modification": {
            "post": {
                "tags": [
                    "Assessments"
                ],
                "summary": "Allow or forbid post-completion score changes",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AuthorizeModificationRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/assessments/{id}/scores": {
            "get": {
                "tags": [
                    "Scores"
                ],
                "summary": "List scores of an assessment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Scores"
                ],
                "summary": "Submit scores for an assessment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkScoreRequest"
                        }
                    }
                ],
                "description": "Rejected lines are reported individually with HTTP 207; the assessment is marked complete only when every line is stored."
            }
        },
        "/api/v1/scores/{id}": {
            "put": {
                "tags": [
                    "Scores"
                ],
                "summary": "Change a single score",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateScoreRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/averages/component": {
            "post": {
                "tags": [
                    "Averages"
                ],
                "summary": "Compute a component average",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ComponentAverageRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/averages/unit": {
            "post": {
                "tags": [
                    "Averages"
                ],
                "summary": "Compute a course unit average",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UnitAverageRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/averages/term": {
            "post": {
                "tags": [
                    "Averages"
                ],
                "summary": "Compute a term average",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/TermAverageRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/averages/recompute": {
            "post": {
                "tags": [
                    "Averages"
                ],
                "summary": "Recompute every average of a class",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecomputeClassRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/tasks": {
            "get": {
                "tags": [
                    "Tasks"
                ],
                "summary": "List scheduled tasks",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "kind",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "classId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Tasks"
                ],
                "summary": "Schedule a deferred task",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ScheduleTaskRequest"
                        }
                    }
                ],
                "description": "Returns the existing task with HTTP 200 when one already targets the same kind and tuple."
            }
        },
        "/api/v1/tasks/run-due": {
            "post": {
                "tags": [
                    "Tasks"
                ],
                "summary": "Run every due task now",
                "description": "Fails with 409 while an automation tick or another run holds the run lock.",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/tasks/{id}": {
            "get": {
                "tags": [
                    "Tasks"
                ],
                "summary": "Get scheduled task",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        },
        "/api/v1/summaries": {
            "post": {
                "tags": [
                    "Summaries"
                ],
                "summary": "Generate a class term summary",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateSummaryRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/summaries/{id}": {
            "get": {
                "tags": [
                    "Summaries"
                ],
                "summary": "Get a summary with its student detail",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        },
        "/api/v1/summaries/{id}/links": {
            "get": {
                "tags": [
                    "Summaries"
                ],
                "summary": "Signed download links for a generated summary",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        },
        "/api/v1/summaries/artifacts/{token}": {
            "get": {
                "tags": [
                    "Summaries"
                ],
                "summary": "Download a summary artifact via signed token",
                "produces": [
                    "application/octet-stream"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    },
                    "403": {
                        "description": "Invalid or expired token"
                    }
                }
            }
        },
        "/api/v1/classes/{id}/summaries": {
            "get": {
                "tags": [
                    "Summaries"
                ],
                "summary": "List summaries of a class",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        }
    },
    "definitions": {
        "CreateAssessmentRequest": {
            "type": "object",
            "properties": {
                "component_id": {
                    "type": "string"
                },
                "class_id": {
                    "type": "string"
                },
                "teacher_id": {
                    "type": "string"
                },
                "kind_code": {
                    "type": "string"
                },
                "session_id": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "assessment_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "max_modifications": {
                    "type": "integer"
                }
            },
            "required": [
                "component_id",
                "class_id",
                "teacher_id",
                "kind_code",
                "session_id",
                "title",
                "assessment_date"
            ]
        },
        "ExtendDeadlineRequest": {
            "type": "object",
            "properties": {
                "extraDays": {
                    "type": "integer"
                }
            },
            "required": [
                "extraDays"
            ]
        },
        "AuthorizeModificationRequest": {
            "type": "object",
            "properties": {
                "allowed": {
                    "type": "boolean"
                }
            },
            "required": [
                "allowed"
            ]
        },
        "ScoreItem": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "value": {
                    "type": "number"
                },
                "absent": {
                    "type": "boolean"
                },
                "absence_justified": {
                    "type": "boolean"
                }
            },
            "required": [
                "student_id"
            ]
        },
        "BulkScoreRequest": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScoreItem"
                    }
                }
            },
            "required": [
                "items"
            ]
        },
        "UpdateScoreRequest": {
            "type": "object",
            "properties": {
                "value": {
                    "type": "number"
                },
                "absent": {
                    "type": "boolean"
                },
                "absence_justified": {
                    "type": "boolean"
                }
            }
        },
        "ComponentAverageRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "componentId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                }
            },
            "required": [
                "studentId",
                "componentId",
                "sessionId"
            ]
        },
        "UnitAverageRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "unitId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                }
            },
            "required": [
                "studentId",
                "unitId",
                "sessionId"
            ]
        },
        "TermAverageRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "classId": {
                    "type": "string"
                },
                "termId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                }
            },
            "required": [
                "studentId",
                "classId",
                "termId",
                "sessionId"
            ]
        },
        "RecomputeClassRequest": {
            "type": "object",
            "properties": {
                "classId": {
                    "type": "string"
                },
                "termId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                }
            },
            "required": [
                "classId",
                "termId",
                "sessionId"
            ]
        },
        "ScheduleTaskRequest": {
            "type": "object",
            "properties": {
                "kind": {
                    "type": "string",
                    "enum": [
                        "recap_semestriel",
                        "inscription_ec",
                        "recompute_class"
                    ]
                },
                "classId": {
                    "type": "string"
                },
                "termId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                },
                "runAt": {
                    "type": "string",
                    "format": "date-time"
                }
            },
            "required": [
                "kind",
                "classId",
                "termId",
                "sessionId"
            ]
        },
        "GenerateSummaryRequest": {
            "type": "object",
            "properties": {
                "classId": {
                    "type": "string"
                },
                "termId": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "string"
                }
            },
            "required": [
                "classId",
                "termId",
                "sessionId"
            ]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
