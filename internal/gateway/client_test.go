package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func gqlHandler(t *testing.T, respond func(req gqlRequest) (int, string)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		code, body := respond(req)
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func TestConversationFetch(t *testing.T) {
	srv := httptest.NewServer(gqlHandler(t, func(req gqlRequest) (int, string) {
		if req.Variables["id"] != "c1" {
			t.Errorf("variables = %v", req.Variables)
		}
		return 200, `{"data":{"conversation":{
			"id":"c1",
			"participants":[{"id":"me"},{"id":"them"}],
			"messages":[{"id":"m1","sender":{"id":"them"},"content":"hi","createdAt":"2024-03-01T10:00:00Z"}]
		}}}`
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	conv, err := c.Conversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "c1" || len(conv.Messages) != 1 {
		t.Errorf("conv = %+v", conv)
	}
}

func TestSendMessageReturnsServerCopy(t *testing.T) {
	srv := httptest.NewServer(gqlHandler(t, func(req gqlRequest) (int, string) {
		if req.Variables["chatId"] != "c1" || req.Variables["content"] != "hello" {
			t.Errorf("variables = %v", req.Variables)
		}
		return 200, `{"data":{"sendMessage":{"id":"srv-1","chatId":"c1","sender":{"id":"me"},"content":"hello","createdAt":"2024-03-01T10:00:00Z"}}}`
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	msg, err := c.SendMessage(context.Background(), "c1", "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-1" {
		t.Errorf("id = %q, want srv-1", msg.ID)
	}
}

func TestGraphQLErrorsBecomeTransportErrors(t *testing.T) {
	srv := httptest.NewServer(gqlHandler(t, func(gqlRequest) (int, string) {
		return 200, `{"errors":[{"message":"conversation not found"}]}`
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	_, err := c.Conversation(context.Background(), "missing")
	if !IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestHTTPFailureBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(gqlHandler(t, func(gqlRequest) (int, string) {
		return 502, `bad gateway`
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	err := c.MarkMessageRead(context.Background(), "m1")
	if !IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestSetTyping(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(gqlHandler(t, func(req gqlRequest) (int, string) {
		got = req.Variables
		return 200, `{"data":{"setTyping":true}}`
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	if err := c.SetTyping(context.Background(), "c1", true); err != nil {
		t.Fatal(err)
	}
	if got["chatId"] != "c1" || got["isTyping"] != true {
		t.Errorf("variables = %v", got)
	}
}
