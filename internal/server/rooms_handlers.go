package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/gin-gonic/gin"
)

type createRoomPayload struct {
	RoomName string `json:"roomname"`
	Key      string `json:"key"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type appendMessagePayload struct {
	Key     string        `json:"key"`
	Message rooms.Message `json:"message"`
}

type replaceMessagesPayload struct {
	Key      string          `json:"key"`
	Messages []rooms.Message `json:"messages"`
	Version  string          `json:"version"`
}

type votePayload struct {
	Key    string `json:"key"`
	Option int    `json:"option"`
}

type cipherResponse struct {
	Success bool   `json:"success"`
	Cipher  string `json:"cipher"`
	Version string `json:"version"`
}

type messagesResponse struct {
	Success  bool            `json:"success"`
	Messages []rooms.Message `json:"messages"`
	Version  string          `json:"version"`
}

type versionResponse struct {
	Success bool   `json:"success"`
	Version string `json:"version"`
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	var request createRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return
	}
	if request.Key == "" {
		h.respondError(c, "create_room", errMissingKey)
		return
	}
	if err := h.rooms.CreateRoom(c.Request.Context(), request.RoomName, request.Key); err != nil {
		h.respondError(c, "create_room", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (h *httpHandler) handleGetRoomCipher(c *gin.Context) {
	cipher, err := h.rooms.GetRoomCipher(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, "get_room_cipher", err)
		return
	}
	c.Header("ETag", strconv.Quote(cipher.Version))
	c.JSON(http.StatusOK, cipherResponse{Success: true, Cipher: cipher.Blob, Version: cipher.Version})
}

func (h *httpHandler) handleReadRoom(c *gin.Context) {
	key, ok := h.bindKey(c, "read_room")
	if !ok {
		return
	}
	snapshot, err := h.rooms.GetRoomMessages(c.Request.Context(), c.Param("name"), key)
	if err != nil {
		h.respondError(c, "read_room", err)
		return
	}
	h.respondSnapshot(c, snapshot)
}

func (h *httpHandler) handleAppendMessage(c *gin.Context) {
	var request appendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return
	}
	if request.Key == "" {
		h.respondError(c, "append_message", errMissingKey)
		return
	}
	applySessionAuthor(c, &request.Message)
	snapshot, err := h.rooms.AppendMessage(c.Request.Context(), c.Param("name"), request.Key, request.Message)
	if err != nil {
		h.respondError(c, "append_message", err)
		return
	}
	c.Header("ETag", strconv.Quote(snapshot.Version))
	c.JSON(http.StatusCreated, versionResponse{Success: true, Version: snapshot.Version})
}

func (h *httpHandler) handleReplaceMessages(c *gin.Context) {
	var request replaceMessagesPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return
	}
	if request.Key == "" {
		h.respondError(c, "replace_messages", errMissingKey)
		return
	}
	expected := strings.TrimSpace(request.Version)
	if expected == "" {
		expected = parseIfMatch(c.GetHeader("If-Match"))
	}
	messages := request.Messages
	if messages == nil {
		messages = []rooms.Message{}
	}
	snapshot, err := h.rooms.ReplaceMessages(c.Request.Context(), c.Param("name"), request.Key, messages, expected)
	if err != nil {
		h.respondError(c, "replace_messages", err)
		return
	}
	h.respondSnapshot(c, snapshot)
}

func (h *httpHandler) handleDeleteMessage(c *gin.Context) {
	index, ok := h.parseIndex(c, "delete_message")
	if !ok {
		return
	}
	key, ok := h.bindKey(c, "delete_message")
	if !ok {
		return
	}
	snapshot, err := h.rooms.DeleteMessage(c.Request.Context(), c.Param("name"), key, index)
	if err != nil {
		h.respondError(c, "delete_message", err)
		return
	}
	h.respondSnapshot(c, snapshot)
}

func (h *httpHandler) handlePinMessage(c *gin.Context) {
	index, ok := h.parseIndex(c, "pin_message")
	if !ok {
		return
	}
	key, ok := h.bindKey(c, "pin_message")
	if !ok {
		return
	}
	snapshot, err := h.rooms.PinMessage(c.Request.Context(), c.Param("name"), key, index)
	if err != nil {
		h.respondError(c, "pin_message", err)
		return
	}
	h.respondSnapshot(c, snapshot)
}

func (h *httpHandler) handleVote(c *gin.Context) {
	index, ok := h.parseIndex(c, "vote")
	if !ok {
		return
	}
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return
	}
	if request.Key == "" {
		h.respondError(c, "vote", errMissingKey)
		return
	}
	snapshot, err := h.rooms.Vote(c.Request.Context(), c.Param("name"), request.Key, index, request.Option)
	if err != nil {
		h.respondError(c, "vote", err)
		return
	}
	h.respondSnapshot(c, snapshot)
}

func (h *httpHandler) bindKey(c *gin.Context, operation string) (string, bool) {
	var request keyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return "", false
	}
	if request.Key == "" {
		h.respondError(c, operation, errMissingKey)
		return "", false
	}
	return request.Key, true
}

func (h *httpHandler) parseIndex(c *gin.Context, operation string) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.respondError(c, operation, rooms.ErrInvalidMessage)
		return 0, false
	}
	return index, true
}

func (h *httpHandler) respondSnapshot(c *gin.Context, snapshot rooms.Snapshot) {
	messages := snapshot.Messages
	if messages == nil {
		messages = []rooms.Message{}
	}
	c.Header("ETag", strconv.Quote(snapshot.Version))
	c.JSON(http.StatusOK, messagesResponse{Success: true, Messages: messages, Version: snapshot.Version})
}

// parseIfMatch extracts the version from an If-Match header value.
func parseIfMatch(header string) string {
	value := strings.TrimSpace(header)
	value = strings.TrimPrefix(value, "W/")
	return strings.Trim(value, `"`)
}
