package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	var posted map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("offset"))
		assert.Equal(t, "1", r.URL.Query().Get("timeout"))
		io.WriteString(w, `{"ok":true,"result":[{"update_id":5,"message":{"message_id":1,"from":{"id":42,"language_code":"de"},"chat":{"id":42},"text":"/list"}}]}`)
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})
	mux.HandleFunc("/botBAD/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", "TOKEN", time.Second)
	updates, err := c.GetUpdates(context.Background(), 5, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(5), updates[0].UpdateID)
	assert.Equal(t, "de", updates[0].Message.From.LanguageCode)
	assert.Equal(t, "/list", updates[0].Message.Text)

	require.NoError(t, c.SendMessage(context.Background(), 42, "hello"))
	assert.Equal(t, float64(42), posted["chat_id"])
	assert.Equal(t, "hello", posted["text"])

	_, err = NewClient(srv.URL, "BAD", time.Second).GetUpdates(context.Background(), 0, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram error 401: Unauthorized")
}

func TestClient_ErrorHidesToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "SECRET", time.Second)
	_, err := c.GetUpdates(context.Background(), 0, 0)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}
