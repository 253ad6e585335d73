package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rutas Académicas API",
        "description": "Schedule import, study plans and elective progress tracking for MBA/EMBA students",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "Authorization"
        }
    },
    "tags": [
        {
            "name": "Imports",
            "description": "Schedule and student uploads"
        },
        {
            "name": "Students",
            "description": "Student registry"
        },
        {
            "name": "Meetings",
            "description": "Advising meetings"
        },
        {
            "name": "Plans",
            "description": "Versioned study plans"
        },
        {
            "name": "Enrollments",
            "description": "Course enrollments"
        },
        {
            "name": "Progress",
            "description": "Concentration rule and risk"
        },
        {
            "name": "Reports"
        },
        {
            "name": "Audit",
            "description": "Change log"
        },
        {
            "name": "Courses",
            "description": "Imported catalog"
        },
        {
            "name": "System"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": [
                    "System"
                ],
                "summary": "Liveness with entity counts",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "503": {
                        "description": "Database unavailable"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "tags": [
                    "System"
                ],
                "summary": "Readiness",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "Not ready"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": [
                    "System"
                ],
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
        "/api/v1/imports/schedule": {
            "post": {
                "tags": [
                    "Imports"
                ],
                "summary": "Import the consolidated schedule workbook",
                "consumes": [
                    "multipart/form-data"
                ],
                "parameters": [
                    {
                        "name": "file",
                        "in": "formData",
                        "required": true,
                        "type": "file"
                    },
                    {
                        "name": "dry_run",
                        "in": "query",
                        "type": "boolean",
                        "description": "Validate and roll back"
                    },
                    {
                        "name": "async",
                        "in": "query",
                        "type": "boolean",
                        "description": "Queue the import"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Finished report",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "202": {
                        "description": "Queued report",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Missing upload",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/imports/{id}": {
            "get": {
                "tags": [
                    "Imports"
                ],
                "summary": "Get an import report",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Report ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown or expired report",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/imports/students": {
            "post": {
                "tags": [
                    "Imports"
                ],
                "summary": "Bulk create students from CSV or xlsx",
                "consumes": [
                    "multipart/form-data"
                ],
                "parameters": [
                    {
                        "name": "file",
                        "in": "formData",
                        "required": true,
                        "type": "file"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Summary",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students": {
            "get": {
                "tags": [
                    "Students"
                ],
                "summary": "List students",
                "parameters": [
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "program",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "cohort",
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
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Students"
                ],
                "summary": "Create student",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateStudentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Email already used",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}": {
            "get": {
                "tags": [
                    "Students"
                ],
                "summary": "Get student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Students"
                ],
                "summary": "Update student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateStudentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Students"
                ],
                "summary": "Soft-delete student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    }
                }
            }
        },
        "/api/v1/students/{id}/meetings": {
            "get": {
                "tags": [
                    "Meetings"
                ],
                "summary": "List meetings",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Meetings"
                ],
                "summary": "Record a meeting",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateMeetingRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/meetings/{id}": {
            "delete": {
                "tags": [
                    "Meetings"
                ],
                "summary": "Delete a meeting",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    }
                }
            }
        },
        "/api/v1/students/{id}/plans": {
            "get": {
                "tags": [
                    "Plans"
                ],
                "summary": "List plan versions",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Plans"
                ],
                "summary": "Open a new plan version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/PlanVersionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "A version is still open",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/plans/close": {
            "post": {
                "tags": [
                    "Plans"
                ],
                "summary": "Close the open version and open its successor",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/PlanVersionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Successor",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "No open version",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/plans/{id}/items": {
            "get": {
                "tags": [
                    "Plans"
                ],
                "summary": "List plan items",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Plan version ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Plans"
                ],
                "summary": "Add a course to an open plan",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Plan version ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AddPlanItemRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Closed plan or duplicate course",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/plans/{id}/items/{item_id}": {
            "delete": {
                "tags": [
                    "Plans"
                ],
                "summary": "Remove a course from an open plan version",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Plan version ID"
                    },
                    {
                        "name": "item_id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Plan item ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Plan or item not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Closed plan",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/enrollments": {
            "get": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "List enrollments",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Enroll a student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateEnrollmentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Already enrolled",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/enrollments/from-plan": {
            "post": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Enroll from the current plan",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "No current plan",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/enrollments/{id}": {
            "patch": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Change status or grades",
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
                            "$ref": "#/definitions/UpdateEnrollmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Delete an enrollment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    }
                }
            }
        },
        "/api/v1/students/{id}/progress": {
            "get": {
                "tags": [
                    "Progress"
                ],
                "summary": "Progress of one student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/metrics/cohorts/{cohort}": {
            "get": {
                "tags": [
                    "Progress"
                ],
                "summary": "Rule compliance for a cohort",
                "parameters": [
                    {
                        "name": "cohort",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "elective_type",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/metrics/programs/{program}": {
            "get": {
                "tags": [
                    "Progress"
                ],
                "summary": "Rule compliance for a program",
                "parameters": [
                    {
                        "name": "program",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "elective_type",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/reports/course-demand": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Open plans listing each course",
                "parameters": [
                    {
                        "name": "program",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "orientation",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/reports/module-demand": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Planned items grouped by module and start month",
                "parameters": [
                    {
                        "name": "program",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "orientation",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/reports/risk": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Rule and risk level of every active student",
                "parameters": [
                    {
                        "name": "program",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "cohort",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "level",
                        "in": "query",
                        "type": "string",
                        "description": "low, medium or high; comma separated or repeated"
                    },
                    {
                        "name": "elective_type",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Unknown risk level",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/audit": {
            "get": {
                "tags": [
                    "Audit"
                ],
                "summary": "List change log entries",
                "parameters": [
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "actor",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "entity",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "entity_id",
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
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/audit/stats": {
            "get": {
                "tags": [
                    "Audit"
                ],
                "summary": "Change log counts",
                "parameters": [
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses": {
            "get": {
                "tags": [
                    "Courses"
                ],
                "summary": "List catalog courses",
                "parameters": [
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "program",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "orientation",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "subject_type",
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
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}": {
            "get": {
                "tags": [
                    "Courses"
                ],
                "summary": "Get a catalog course",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "first_name": {
                    "type": "string"
                },
                "last_name": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "program": {
                    "type": "string",
                    "enum": [
                        "MBA",
                        "EMBA"
                    ]
                },
                "cohort": {
                    "type": "string"
                },
                "extra": {
                    "type": "string"
                }
            },
            "required": [
                "first_name",
                "last_name",
                "email"
            ]
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {
                "first_name": {
                    "type": "string"
                },
                "last_name": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "program": {
                    "type": "string",
                    "enum": [
                        "MBA",
                        "EMBA"
                    ]
                },
                "cohort": {
                    "type": "string"
                },
                "extra": {
                    "type": "string"
                }
            },
            "required": [
                "first_name",
                "last_name",
                "email",
                "program"
            ]
        },
        "CreateMeetingRequest": {
            "type": "object",
            "properties": {
                "held_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "target_orientation": {
                    "type": "string"
                },
                "agreement": {
                    "type": "string"
                },
                "notes": {
                    "type": "string"
                }
            }
        },
        "PlanVersionRequest": {
            "type": "object",
            "properties": {
                "comment": {
                    "type": "string"
                }
            }
        },
        "AddPlanItemRequest": {
            "type": "object",
            "properties": {
                "course_ref": {
                    "type": "string"
                },
                "priority": {
                    "type": "integer"
                },
                "state": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "backup"
                    ]
                },
                "note": {
                    "type": "string"
                }
            },
            "required": [
                "course_ref"
            ]
        },
        "CreateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "course_ref": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "registered",
                        "completed",
                        "withdrawn",
                        "failed"
                    ]
                },
                "grade": {
                    "type": "string"
                },
                "grade_numeric": {
                    "type": "number"
                }
            },
            "required": [
                "course_ref"
            ]
        },
        "UpdateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "registered",
                        "completed",
                        "withdrawn",
                        "failed"
                    ]
                },
                "grade": {
                    "type": "string"
                },
                "grade_numeric": {
                    "type": "number"
                }
            }
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
                },
                "details": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
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
