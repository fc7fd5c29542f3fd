package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/session"
	"github.com/gin-gonic/gin"
)

const (
	actionCreateRoom  = "create_room"
	actionGetRoom     = "get_room"
	actionSendMessage = "send_message"

	maxMultipartMemory = 8 << 20
)

// legacyRequest carries the fields of the action endpoint, posted as a form or as JSON.
type legacyRequest struct {
	Action   string
	RoomName string
	Key      string
	Message  string
}

type legacyJSONRequest struct {
	Action   string          `json:"action"`
	RoomName string          `json:"roomname"`
	Key      string          `json:"key"`
	Message  json.RawMessage `json:"message"`
}

type legacyResponse struct {
	Success bool   `json:"success"`
	Cipher  string `json:"cipher,omitempty"`
	Version string `json:"version,omitempty"`
}

// handleLegacyAction serves the action protocol of the original browser client. Outcomes are
// always reported with status 200 and a success flag, as that client expects.
func (h *httpHandler) handleLegacyAction(c *gin.Context) {
	request, err := parseLegacyRequest(c)
	if err != nil {
		h.respondLegacyError(c, err)
		return
	}

	ctx := c.Request.Context()
	switch request.Action {
	case actionCreateRoom:
		if request.Key == "" {
			h.respondLegacyError(c, errMissingKey)
			return
		}
		if err := h.rooms.CreateRoom(ctx, request.RoomName, request.Key); err != nil {
			h.respondLegacyError(c, err)
			return
		}
		c.JSON(http.StatusOK, legacyResponse{Success: true})
	case actionGetRoom:
		if request.Key == "" {
			cipher, err := h.rooms.GetRoomCipher(ctx, request.RoomName)
			if err != nil {
				h.respondLegacyError(c, err)
				return
			}
			c.JSON(http.StatusOK, legacyResponse{Success: true, Cipher: cipher.Blob, Version: cipher.Version})
			return
		}
		snapshot, err := h.rooms.GetRoomMessages(ctx, request.RoomName, request.Key)
		if err != nil {
			h.respondLegacyError(c, err)
			return
		}
		c.JSON(http.StatusOK, legacyMessagesResponse{Success: true, Messages: snapshot.Messages, Version: snapshot.Version})
	case actionSendMessage:
		if request.Key == "" {
			h.respondLegacyError(c, errMissingKey)
			return
		}
		submission, err := rooms.ParseSubmission([]byte(request.Message))
		if err != nil {
			h.respondLegacyError(c, err)
			return
		}
		if !submission.IsReplace() {
			applySessionAuthor(c, submission.Message)
		}
		snapshot, err := h.rooms.Send(ctx, request.RoomName, request.Key, submission)
		if err != nil {
			h.respondLegacyError(c, err)
			return
		}
		c.JSON(http.StatusOK, legacyResponse{Success: true, Version: snapshot.Version})
	default:
		c.JSON(http.StatusOK, errorResponse{Success: false, Error: messageInvalidAction, Code: codeInvalidAction})
	}
}

// legacyMessagesResponse always includes the messages array, even when empty.
type legacyMessagesResponse struct {
	Success  bool            `json:"success"`
	Messages []rooms.Message `json:"messages"`
	Version  string          `json:"version"`
}

func (h *httpHandler) respondLegacyError(c *gin.Context, err error) {
	status, message, code := describeError(err)
	if status >= http.StatusInternalServerError {
		h.respondError(c, "legacy_action", err)
		return
	}
	c.JSON(http.StatusOK, errorResponse{Success: false, Error: message, Code: code})
}

func parseLegacyRequest(c *gin.Context) (legacyRequest, error) {
	if c.ContentType() == gin.MIMEJSON {
		var payload legacyJSONRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
			if isBodyTooLarge(err) {
				return legacyRequest{}, err
			}
			return legacyRequest{}, rooms.ErrInvalidMessage
		}
		message, err := rawMessageText(payload.Message)
		if err != nil {
			return legacyRequest{}, err
		}
		return legacyRequest{
			Action:   payload.Action,
			RoomName: payload.RoomName,
			Key:      payload.Key,
			Message:  message,
		}, nil
	}

	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isBodyTooLarge(err) {
			return legacyRequest{}, err
		}
		return legacyRequest{}, rooms.ErrInvalidMessage
	}
	return legacyRequest{
		Action:   c.Request.PostFormValue("action"),
		RoomName: c.Request.PostFormValue("roomname"),
		Key:      c.Request.PostFormValue("key"),
		Message:  c.Request.PostFormValue("message"),
	}, nil
}

// rawMessageText accepts the message either as a JSON-encoded string, as the browser client
// sends it, or as an inline JSON object.
func rawMessageText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", rooms.ErrInvalidMessage
		}
		return text, nil
	}
	return trimmed, nil
}

// applySessionAuthor fills a missing author from the request session.
func applySessionAuthor(c *gin.Context, message *rooms.Message) {
	if message == nil || strings.TrimSpace(message.Author) != "" {
		return
	}
	if current, ok := session.FromContext(c.Request.Context()); ok {
		message.Author = current.DisplayName
	}
}
