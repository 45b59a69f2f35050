package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/shayarigram/shayarigram/internal/db"
)

func TestChatIDIsOrderIndependent(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"alice", "bob", "alice_bob"},
		{"bob", "alice", "alice_bob"},
		{"zoya", "amir", "amir_zoya"},
		{"same", "same2", "same_same2"},
	}
	for _, tt := range tests {
		if got := ChatID(tt.a, tt.b); got != tt.want {
			t.Errorf("ChatID(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCreateChatResolvesToOneRow(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	bobToken := registerTestUser(t, "bob")

	w := doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("CreateChat status = %d: %s", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)["chat"].(map[string]interface{})

	// opening from the other side lands on the same conversation
	w = doRequest(t, "POST", "/api/chats", bobToken, map[string]string{"username": "alice"})
	second := decodeBody(t, w)["chat"].(map[string]interface{})

	if first["id"] != "alice_bob" || second["id"] != "alice_bob" {
		t.Errorf("chat ids = %v / %v, want alice_bob both times", first["id"], second["id"])
	}

	var count int
	testDB.QueryRow("SELECT COUNT(*) FROM chats").Scan(&count)
	if count != 1 {
		t.Errorf("chat rows = %d, want 1", count)
	}
}

func TestCreateChatRefusals(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	carolToken := registerTestUser(t, "carol")

	w := doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self chat status = %d, want 400", w.Code)
	}

	w = doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", w.Code)
	}

	doRequest(t, "POST", "/api/users/alice/block", carolToken, nil)
	w = doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "carol"})
	if w.Code != http.StatusForbidden {
		t.Errorf("blocked pair status = %d, want 403", w.Code)
	}
}

func TestSendMessageUpdatesSummary(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	bobToken := registerTestUser(t, "bob")

	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})

	w := doRequest(t, "POST", "/api/chats/alice_bob/messages", aliceToken,
		map[string]interface{}{"text": "salaam"})
	if w.Code != http.StatusCreated {
		t.Fatalf("SendMessage status = %d: %s", w.Code, w.Body.String())
	}

	// the summary moved in the same write
	w = doRequest(t, "GET", "/api/chats", bobToken, nil)
	chats := decodeBody(t, w)["chats"].([]interface{})
	if len(chats) != 1 {
		t.Fatalf("bob has %d chats, want 1", len(chats))
	}
	chat := chats[0].(map[string]interface{})
	if chat["last_message"] != "salaam" || chat["last_message_sender"] != "alice" || chat["is_read"] != false {
		t.Errorf("summary = %v", chat)
	}

	// bob sees the unread flag, alice never counts her own message
	w = doRequest(t, "GET", "/api/presence", bobToken, nil)
	if decodeBody(t, w)["unread_messages"] != true {
		t.Error("bob should have unread messages")
	}
	w = doRequest(t, "GET", "/api/presence", aliceToken, nil)
	if decodeBody(t, w)["unread_messages"] != false {
		t.Error("alice should not see her own message as unread")
	}

	// the sender opening the chat cannot clear the recipient's flag
	w = doRequest(t, "POST", "/api/chats/alice_bob/read", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("MarkRead (sender) status = %d", w.Code)
	}
	w = doRequest(t, "GET", "/api/presence", bobToken, nil)
	if decodeBody(t, w)["unread_messages"] != true {
		t.Error("sender MarkRead should not clear recipient's unread flag")
	}

	// the recipient opening the chat does
	w = doRequest(t, "POST", "/api/chats/alice_bob/read", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("MarkRead status = %d", w.Code)
	}
	w = doRequest(t, "GET", "/api/presence", bobToken, nil)
	if decodeBody(t, w)["unread_messages"] != false {
		t.Error("unread should clear after recipient MarkRead")
	}

	// an outsider cannot read the transcript
	carolToken := registerTestUser(t, "carol")
	w = doRequest(t, "GET", "/api/chats/alice_bob/messages", carolToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider transcript status = %d, want 403", w.Code)
	}
}

func TestReplyTargetMustBeInSameChat(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	registerTestUser(t, "bob")
	registerTestUser(t, "carol")

	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})
	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "carol"})

	w := doRequest(t, "POST", "/api/chats/alice_bob/messages", aliceToken,
		map[string]interface{}{"text": "pehla"})
	msg := decodeBody(t, w)["message"].(map[string]interface{})
	msgID := int(msg["id"].(float64))

	// quoting from another conversation is rejected
	w = doRequest(t, "POST", "/api/chats/alice_carol/messages", aliceToken,
		map[string]interface{}{"text": "jawab", "reply_to": msgID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("cross-chat reply status = %d, want 400", w.Code)
	}

	// quoting in the same conversation carries the reference and preview
	w = doRequest(t, "POST", "/api/chats/alice_bob/messages", aliceToken,
		map[string]interface{}{"text": "jawab", "reply_to": msgID})
	if w.Code != http.StatusCreated {
		t.Fatalf("reply status = %d: %s", w.Code, w.Body.String())
	}
	reply := decodeBody(t, w)["message"].(map[string]interface{})
	ref, ok := reply["reply_to"].(map[string]interface{})
	if !ok {
		t.Fatalf("reply_to missing: %v", reply)
	}
	if int(ref["message_id"].(float64)) != msgID || ref["sender"] != "alice" || ref["preview"] != "pehla" {
		t.Errorf("reply_to = %v", ref)
	}
}

func TestForwardFanOutIsIndependentPerRecipient(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	registerTestUser(t, "bob")
	carolToken := registerTestUser(t, "carol")
	registerTestUser(t, "dave")

	// carol blocked alice, so that leg must fail while the others land
	doRequest(t, "POST", "/api/users/alice/block", carolToken, nil)

	w := doRequest(t, "POST", "/api/messages/forward", aliceToken, map[string]interface{}{
		"recipients": []string{"bob", "carol", "dave"},
		"kind":       "text",
		"text":       "sabko salaam",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Forward status = %d: %s", w.Code, w.Body.String())
	}

	outcomes := decodeBody(t, w)["outcomes"].([]interface{})
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	okCount := 0
	for _, raw := range outcomes {
		outcome := raw.(map[string]interface{})
		if outcome["ok"] == true {
			okCount++
		} else if outcome["recipient"] != "carol" {
			t.Errorf("unexpected failure for %v: %v", outcome["recipient"], outcome["error"])
		}
	}
	if okCount != 2 {
		t.Errorf("ok outcomes = %d, want 2", okCount)
	}

	var messages int
	testDB.QueryRow("SELECT COUNT(*) FROM messages WHERE is_forwarded = 1").Scan(&messages)
	if messages != 2 {
		t.Errorf("forwarded messages = %d, want 2", messages)
	}
}

func TestForwardPostCreatesChatWithSingleShare(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	bobToken := registerTestUser(t, "bob")

	postID := createTestPost(t, aliceToken, "baantne layak sher")

	// bob forwards the post to alice with no prior conversation
	w := doRequest(t, "POST", "/api/messages/forward", bobToken, map[string]interface{}{
		"recipients": []string{"alice"},
		"kind":       "post",
		"post_id":    postID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Forward status = %d: %s", w.Code, w.Body.String())
	}

	var chats int
	testDB.QueryRow("SELECT COUNT(*) FROM chats").Scan(&chats)
	if chats != 1 {
		t.Fatalf("chat rows = %d, want 1", chats)
	}
	var chatID string
	testDB.QueryRow("SELECT id FROM chats").Scan(&chatID)
	if chatID != "alice_bob" {
		t.Errorf("chat id = %q, want alice_bob", chatID)
	}

	var messages int
	testDB.QueryRow("SELECT COUNT(*) FROM messages WHERE chat_id = 'alice_bob'").Scan(&messages)
	if messages != 1 {
		t.Fatalf("messages = %d, want exactly 1", messages)
	}
	var kind string
	var sharedPost int
	testDB.QueryRow("SELECT kind, post_id FROM messages WHERE chat_id = 'alice_bob'").Scan(&kind, &sharedPost)
	if kind != "post" || sharedPost != postID {
		t.Errorf("message = %s/%d, want post/%d", kind, sharedPost, postID)
	}
}

func TestBulkDeleteLeavesNoOrphans(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	registerTestUser(t, "bob")

	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})
	doRequest(t, "POST", "/api/chats/alice_bob/mute", aliceToken, nil)

	// well past the per-transaction write limit
	total := db.MaxBatchWrites + 150
	tx, err := testDB.Begin()
	if err != nil {
		t.Fatalf("Failed to begin seed tx: %v", err)
	}
	for i := 0; i < total; i++ {
		if _, err := tx.Exec(
			"INSERT INTO messages (chat_id, sender, kind, text) VALUES ('alice_bob', 'alice', 'text', ?)",
			fmt.Sprintf("message %d", i),
		); err != nil {
			t.Fatalf("Failed to seed message: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to seed messages: %v", err)
	}

	w := doRequest(t, "POST", "/api/chats/delete", aliceToken,
		map[string]interface{}{"chat_ids": []string{"alice_bob"}})
	if w.Code != http.StatusOK {
		t.Fatalf("BulkDelete status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["batches"].(float64) < 2 {
		t.Errorf("batches = %v, want at least 2 for %d writes", resp["batches"], total)
	}

	// the response arrives only after every batch committed, so a fresh
	// query must see no orphan messages, no mutes, and no chat row
	for _, q := range []string{
		"SELECT COUNT(*) FROM messages WHERE chat_id = 'alice_bob'",
		"SELECT COUNT(*) FROM chat_mutes WHERE chat_id = 'alice_bob'",
		"SELECT COUNT(*) FROM chats WHERE id = 'alice_bob'",
	} {
		var count int
		testDB.QueryRow(q).Scan(&count)
		if count != 0 {
			t.Errorf("%s = %d, want 0", q, count)
		}
	}
}

func TestBulkDeleteRequiresParticipation(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	registerTestUser(t, "bob")
	carolToken := registerTestUser(t, "carol")

	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})

	w := doRequest(t, "POST", "/api/chats/delete", carolToken,
		map[string]interface{}{"chat_ids": []string{"alice_bob"}})
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider bulk delete status = %d, want 403", w.Code)
	}

	var count int
	testDB.QueryRow("SELECT COUNT(*) FROM chats").Scan(&count)
	if count != 1 {
		t.Errorf("chat rows = %d, want 1 (nothing deleted)", count)
	}
}

func TestMuteToggleAndMessageDelete(t *testing.T) {
	clearTestData()
	aliceToken := registerTestUser(t, "alice")
	bobToken := registerTestUser(t, "bob")

	doRequest(t, "POST", "/api/chats", aliceToken, map[string]string{"username": "bob"})

	w := doRequest(t, "POST", "/api/chats/alice_bob/mute", bobToken, nil)
	if decodeBody(t, w)["muted"] != true {
		t.Error("Expected muted=true after first toggle")
	}

	w = doRequest(t, "GET", "/api/chats", aliceToken, nil)
	chat := decodeBody(t, w)["chats"].([]interface{})[0].(map[string]interface{})
	mutedBy := chat["muted_by"].([]interface{})
	if len(mutedBy) != 1 || mutedBy[0] != "bob" {
		t.Errorf("muted_by = %v, want [bob]", mutedBy)
	}

	w = doRequest(t, "POST", "/api/chats/alice_bob/mute", bobToken, nil)
	if decodeBody(t, w)["muted"] != false {
		t.Error("Expected muted=false after second toggle")
	}

	w = doRequest(t, "POST", "/api/chats/alice_bob/messages", aliceToken,
		map[string]interface{}{"text": "galti se bheja"})
	msgID := int(decodeBody(t, w)["message"].(map[string]interface{})["id"].(float64))

	// only the sender may remove a message
	w = doRequest(t, "DELETE", fmt.Sprintf("/api/messages/%d", msgID), bobToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign message delete status = %d, want 403", w.Code)
	}

	w = doRequest(t, "DELETE", fmt.Sprintf("/api/messages/%d", msgID), aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("message delete status = %d, want 200", w.Code)
	}
	var remaining int
	testDB.QueryRow("SELECT COUNT(*) FROM messages WHERE id = ?", msgID).Scan(&remaining)
	if remaining != 0 {
		t.Error("message row should be gone")
	}
}
