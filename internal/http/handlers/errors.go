// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and give clients a stable, machine-readable
// value to branch on. The human-readable text travels in the "error" field of
// the envelope and may change; the code may not.
//
// Example response:
//
//	{
//	  "success": false,
//	  "error": "Todos los campos son obligatorios.",
//	  "code": "bad_request",
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"

	// Domain-specific:
	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
)

// User-facing texts of the contact endpoint. The site is Spanish-language.
const (
	MsgSubmitted     = "Mensaje enviado y guardado con éxito."
	MsgFieldsMissing = "Todos los campos son obligatorios."
	MsgStoreFailed   = "Error al guardar el mensaje en la base de datos."
	MsgTooLarge      = "El mensaje es demasiado grande."
)
