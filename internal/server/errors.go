package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidRequest = "server.invalid_request"
	codeMissingKey     = "server.missing_key"
	codeBodyTooLarge   = "server.body_too_large"
	codeInvalidAction  = "server.invalid_action"
	codeInternal       = "server.internal"
)

// Messages shown by the browser client. The first six match the strings it already handles.
const (
	messageInvalidName     = "Invalid chatroom name."
	messageAlreadyExists   = "Chatroom already exists."
	messageNotFound        = "Chatroom not found."
	messageInvalidMessage  = "Invalid message."
	messageSVGTooLarge     = "SVG file too large."
	messageInvalidAction   = "Invalid action."
	messageWrongKey        = "Incorrect encryption key."
	messageVersionConflict = "Chatroom changed, reload and try again."
	messageStorageFailure  = "Storage error."
	messageMissingKey      = "A room key is required."
	messageBodyTooLarge    = "Request too large."
	messageInvalidRequest  = "Invalid request."
	messageInvalidSession  = "Invalid username."
	messageNoSession       = "No session."
	messageCorruptRoom     = "Chatroom data is unreadable."
)

var errMissingKey = errors.New("room key is required")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// describeError maps an error to its HTTP status, client message and code.
func describeError(err error) (int, string, string) {
	status, message, code := classifyError(err)
	var serviceErr *rooms.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	return status, message, code
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, rooms.ErrInvalidName):
		return http.StatusBadRequest, messageInvalidName, codeInvalidRequest
	case errors.Is(err, rooms.ErrInvalidMessage):
		return http.StatusBadRequest, messageInvalidMessage, codeInvalidRequest
	case errors.Is(err, rooms.ErrRoomNotFound):
		return http.StatusNotFound, messageNotFound, codeInvalidRequest
	case errors.Is(err, rooms.ErrRoomAlreadyExists):
		return http.StatusConflict, messageAlreadyExists, codeInvalidRequest
	case errors.Is(err, rooms.ErrVersionConflict):
		return http.StatusConflict, messageVersionConflict, codeInvalidRequest
	case errors.Is(err, rooms.ErrCorruptRoom):
		return http.StatusInternalServerError, messageCorruptRoom, codeInternal
	case errors.Is(err, rooms.ErrDecryptionFailed):
		return http.StatusForbidden, messageWrongKey, codeInvalidRequest
	case errors.Is(err, rooms.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge, messageSVGTooLarge, codeInvalidRequest
	case errors.Is(err, errMissingKey):
		return http.StatusBadRequest, messageMissingKey, codeMissingKey
	case isBodyTooLarge(err):
		return http.StatusRequestEntityTooLarge, messageBodyTooLarge, codeBodyTooLarge
	default:
		return http.StatusInternalServerError, messageStorageFailure, codeInternal
	}
}

// respondError writes the JSON error body and logs server-side failures.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, message, code := describeError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, errorResponse{Success: false, Error: message, Code: code})
}

func (h *httpHandler) respondBadRequest(c *gin.Context, err error) {
	if isBodyTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Success: false, Error: messageBodyTooLarge, Code: codeBodyTooLarge})
		return
	}
	c.JSON(http.StatusBadRequest, errorResponse{Success: false, Error: messageInvalidRequest, Code: codeInvalidRequest})
}
