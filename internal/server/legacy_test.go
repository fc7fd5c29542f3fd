package server

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
)

func legacyCall(t *testing.T, server testServer, values url.Values) genericResponse {
	t.Helper()
	recorder := server.postForm(t, values)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200 from action endpoint, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response genericResponse
	decodeResponse(t, recorder, &response)
	return response
}

func TestLegacyCreateAndGetRoom(t *testing.T) {
	server := newTestServer(t)

	created := legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"lobby"}, "key": {"k1"}})
	if !created.Success {
		t.Fatalf("expected create to succeed, got %+v", created)
	}

	duplicate := legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"lobby"}, "key": {"k1"}})
	if duplicate.Success || duplicate.Error != "Chatroom already exists." {
		t.Fatalf("unexpected duplicate response %+v", duplicate)
	}
	if duplicate.Code != "rooms.create_room.room_already_exists" {
		t.Fatalf("unexpected code %q", duplicate.Code)
	}

	invalid := legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"../etc"}, "key": {"k1"}})
	if invalid.Success || invalid.Error != "Invalid chatroom name." {
		t.Fatalf("unexpected invalid name response %+v", invalid)
	}

	opaque := legacyCall(t, server, url.Values{"action": {"get_room"}, "roomname": {"lobby"}})
	if !opaque.Success || opaque.Cipher == "" {
		t.Fatalf("expected cipher in response, got %+v", opaque)
	}
	var messages []rooms.Message
	if err := crypto.OpenJSON(crypto.DeriveKey("k1"), opaque.Cipher, &messages); err != nil {
		t.Fatalf("expected cipher to open client side: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty room, got %d messages", len(messages))
	}

	missing := legacyCall(t, server, url.Values{"action": {"get_room"}, "roomname": {"ghost"}})
	if missing.Success || missing.Error != "Chatroom not found." {
		t.Fatalf("unexpected missing room response %+v", missing)
	}
}

func TestLegacySendMessageAndServerDecrypt(t *testing.T) {
	server := newTestServer(t)
	legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"lobby"}, "key": {"k1"}})

	sent := legacyCall(t, server, url.Values{
		"action":   {"send_message"},
		"roomname": {"lobby"},
		"key":      {"k1"},
		"message":  {`{"author":"alice","datetime":"2026-10-01T12:00:00.000Z","type":"text","text":"hello"}`},
	})
	if !sent.Success {
		t.Fatalf("expected send to succeed, got %+v", sent)
	}

	read := legacyCall(t, server, url.Values{"action": {"get_room"}, "roomname": {"lobby"}, "key": {"k1"}})
	if !read.Success || len(read.Messages) != 1 || read.Messages[0].Text != "hello" || read.Version == "" {
		t.Fatalf("unexpected server decrypt response %+v", read)
	}

	wrongKey := legacyCall(t, server, url.Values{"action": {"get_room"}, "roomname": {"lobby"}, "key": {"nope"}})
	if wrongKey.Success || wrongKey.Error != "Incorrect encryption key." {
		t.Fatalf("unexpected wrong key response %+v", wrongKey)
	}

	replaced := legacyCall(t, server, url.Values{
		"action":   {"send_message"},
		"roomname": {"lobby"},
		"key":      {"k1"},
		"message":  {`{"type":"__replace__","data":[]}`},
	})
	if !replaced.Success {
		t.Fatalf("expected replace to succeed, got %+v", replaced)
	}
	read = legacyCall(t, server, url.Values{"action": {"get_room"}, "roomname": {"lobby"}, "key": {"k1"}})
	if len(read.Messages) != 0 || read.Messages == nil {
		t.Fatalf("expected empty messages array after replace, got %+v", read)
	}
}

func TestLegacyRejectsBadInput(t *testing.T) {
	server := newTestServer(t)
	legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"lobby"}, "key": {"k1"}})

	unknown := legacyCall(t, server, url.Values{"action": {"delete_room"}})
	if unknown.Success || unknown.Error != "Invalid action." {
		t.Fatalf("unexpected unknown action response %+v", unknown)
	}

	badMessage := legacyCall(t, server, url.Values{"action": {"send_message"}, "roomname": {"lobby"}, "key": {"k1"}, "message": {"{not json"}})
	if badMessage.Success || badMessage.Error != "Invalid message." {
		t.Fatalf("unexpected bad message response %+v", badMessage)
	}

	bigSVG := `{"type":"svg","svg":"` + strings.Repeat("a", 100*1024+1) + `"}`
	tooLarge := legacyCall(t, server, url.Values{"action": {"send_message"}, "roomname": {"lobby"}, "key": {"k1"}, "message": {bigSVG}})
	if tooLarge.Success || tooLarge.Error != "SVG file too large." {
		t.Fatalf("unexpected svg response %+v", tooLarge)
	}

	noKey := legacyCall(t, server, url.Values{"action": {"create_room"}, "roomname": {"other"}})
	if noKey.Success || noKey.Code != codeMissingKey {
		t.Fatalf("unexpected missing key response %+v", noKey)
	}

	oversized := legacyCall(t, server, url.Values{"action": {"send_message"}, "roomname": {"lobby"}, "key": {"k1"}, "message": {strings.Repeat("x", testMaxBodyBytes)}})
	if oversized.Success || oversized.Code != codeBodyTooLarge {
		t.Fatalf("unexpected oversized response %+v", oversized)
	}
}

func TestLegacyAcceptsJSONBodies(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/", `{"action":"create_room","roomname":"lobby","key":"k1"}`)
	var created genericResponse
	decodeResponse(t, recorder, &created)
	if !created.Success {
		t.Fatalf("expected JSON create to succeed, got %s", recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/", `{"action":"send_message","roomname":"lobby","key":"k1","message":{"type":"text","text":"inline"}}`)
	var sent genericResponse
	decodeResponse(t, recorder, &sent)
	if !sent.Success {
		t.Fatalf("expected inline message to be accepted, got %s", recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/", `{"action":"get_room","roomname":"lobby","key":"k1"}`)
	var read genericResponse
	decodeResponse(t, recorder, &read)
	if len(read.Messages) != 1 || read.Messages[0].Author != "anonymous" {
		t.Fatalf("unexpected messages %+v", read.Messages)
	}
}
