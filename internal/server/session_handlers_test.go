package server

import (
	"net/http"
	"testing"
)

func sessionCookie(t *testing.T, cookies []*http.Cookie) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	t.Fatalf("expected %s cookie in %v", testCookieName, cookies)
	return nil
}

func TestSessionEndpoints(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodGet, "/api/session", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", recorder.Code)
	}

	recorder = server.do(t, http.MethodPost, "/api/session", `{"username":"  alice  "}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	cookie := sessionCookie(t, recorder.Result().Cookies())
	if !cookie.HttpOnly || cookie.MaxAge <= 0 {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}

	recorder = server.do(t, http.MethodGet, "/api/session", "", cookie)
	var current genericResponse
	decodeResponse(t, recorder, &current)
	if recorder.Code != http.StatusOK || current.Username != "alice" {
		t.Fatalf("unexpected session response %d %+v", recorder.Code, current)
	}

	recorder = server.do(t, http.MethodDelete, "/api/session", "", cookie)
	cleared := sessionCookie(t, recorder.Result().Cookies())
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cookie to be cleared, got %+v", cleared)
	}

	recorder = server.do(t, http.MethodPost, "/api/session", `{"username":"   "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank username, got %d", recorder.Code)
	}
}

func TestSessionSuppliesMissingAuthor(t *testing.T) {
	server := newTestServer(t)
	recorder := server.do(t, http.MethodPost, "/api/session", `{"username":"bob"}`)
	cookie := sessionCookie(t, recorder.Result().Cookies())

	server.do(t, http.MethodPost, "/api/rooms", `{"roomname":"lobby","key":"k1"}`)
	server.do(t, http.MethodPost, "/api/rooms/lobby/messages", `{"key":"k1","message":{"type":"text","text":"from session"}}`, cookie)
	server.do(t, http.MethodPost, "/api/rooms/lobby/messages", `{"key":"k1","message":{"author":"carol","type":"text","text":"explicit"}}`, cookie)
	server.do(t, http.MethodPost, "/", `{"action":"send_message","roomname":"lobby","key":"k1","message":"{\"type\":\"text\",\"text\":\"legacy\"}"}`, cookie)

	recorder = server.do(t, http.MethodPost, "/api/rooms/lobby/read", `{"key":"k1"}`)
	var read genericResponse
	decodeResponse(t, recorder, &read)
	if len(read.Messages) != 3 {
		t.Fatalf("expected three messages, got %+v", read.Messages)
	}
	authors := []string{read.Messages[0].Author, read.Messages[1].Author, read.Messages[2].Author}
	if authors[0] != "bob" || authors[1] != "carol" || authors[2] != "bob" {
		t.Fatalf("unexpected authors %v", authors)
	}
}
