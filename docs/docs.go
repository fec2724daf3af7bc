// Package docs holds the OpenAPI document served at /swagger/doc.json. It is maintained by
// hand alongside the handler annotations; router tests check it against the registered routes.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "email": "support@example.com"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List all users (Admin only)",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.User"}}},
                    "401": {"description": "Token revoked or expired", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Admin privileges required", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/admin/users/{id}/role": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Update a user's role (Admin only)",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "New role", "name": "role", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.UpdateUserRoleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Invalid user id or role", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "401": {"description": "Token revoked or expired", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Admin privileges required", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/forgot-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Request a password reset",
                "parameters": [
                    {"description": "Account email", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ForgotPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Email is missing", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "500": {"description": "Mail could not be sent", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Show the status of server",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in a user",
                "parameters": [
                    {"description": "User login credentials", "name": "credentials", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.LoginResponse"}},
                    "400": {"description": "Missing fields or invalid email", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "401": {"description": "Invalid email or password", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log out",
                "parameters": [
                    {"description": "Optional refresh token to revoke", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/model.LogoutRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "401": {"description": "Token revoked or expired", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Show the logged-in user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.PublicUser"}},
                    "401": {"description": "Token revoked or expired", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/profile/reset-password": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Change the password of the logged-in user",
                "parameters": [
                    {"description": "Current and new password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ChangePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Missing fields or weak password", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "401": {"description": "Current password is incorrect", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/refresh": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Refresh the access token",
                "parameters": [
                    {"description": "Refresh token", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RefreshResponse"}},
                    "400": {"description": "Refresh token is missing", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "401": {"description": "Refresh token revoked or expired", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "403": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a new user",
                "parameters": [
                    {"description": "User registration details", "name": "user", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.RegisterResponse"}},
                    "400": {"description": "Missing fields, invalid email, weak password or email already in use", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        },
        "/reset-password/{token}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Reset a password with a mailed token",
                "parameters": [
                    {"type": "string", "description": "Reset token from the mailed link", "name": "token", "in": "path", "required": true},
                    {"description": "New password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ResetPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Missing or weak password, expired or invalid token", "schema": {"$ref": "#/definitions/common.AppError"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/common.AppError"}}
                }
            }
        }
    },
    "definitions": {
        "common.AppError": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "model.ChangePasswordRequest": {
            "type": "object",
            "required": ["current_password", "new_password"],
            "properties": {
                "current_password": {"type": "string"},
                "new_password": {"type": "string"}
            }
        },
        "model.ForgotPasswordRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "email": {"type": "string"}
            }
        },
        "model.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "model.LoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "message": {"type": "string"},
                "refresh_token": {"type": "string"},
                "user": {"$ref": "#/definitions/model.PublicUser"}
            }
        },
        "model.LogoutRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "model.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "model.PublicUser": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "first_name": {"type": "string"},
                "id": {"type": "integer"},
                "last_name": {"type": "string"}
            }
        },
        "model.RefreshRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "model.RefreshResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"}
            }
        },
        "model.RegisterRequest": {
            "type": "object",
            "required": ["email", "first_name", "last_name", "password"],
            "properties": {
                "email": {"type": "string", "maxLength": 100},
                "first_name": {"type": "string", "maxLength": 50},
                "last_name": {"type": "string", "maxLength": 50},
                "password": {"type": "string"}
            }
        },
        "model.RegisterResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "user_id": {"type": "integer"}
            }
        },
        "model.ResetPasswordRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {
                "password": {"type": "string"}
            }
        },
        "model.UpdateUserRoleRequest": {
            "type": "object",
            "required": ["role"],
            "properties": {
                "role": {"type": "string", "enum": ["GLUCOCHECK_USER", "ADMIN"]}
            }
        },
        "model.User": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "email": {"type": "string"},
                "first_name": {"type": "string"},
                "id": {"type": "integer"},
                "is_admin": {"type": "boolean"},
                "last_name": {"type": "string"},
                "role": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "GlucoCheck Auth API",
	Description:      "Authentication and token lifecycle service for the GlucoCheck food-logging application.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
