package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMessages(t *testing.T) {
	before := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/c 1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, before.Format(time.RFC3339Nano), r.URL.Query().Get("before"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]models.Message{{ID: "m1", ConversationID: "c 1"}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", "tok", nil, nil)
	msgs, err := c.FetchMessages(context.Background(), "c 1", before, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestFetchConversationsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"missing", http.StatusNotFound, ErrNotFound},
		{"server", http.StatusInternalServerError, ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", nil, nil).FetchConversations(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestUploadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/media", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "cat.png", hdr.Filename)
		assert.Equal(t, "pixels", string(data))
		_ = json.NewEncoder(w).Encode(models.MediaRef{URL: "https://cdn/cat.png"})
	}))
	defer srv.Close()

	ref, err := New(srv.URL, "tok", nil, nil).UploadMedia(context.Background(), "cat.png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/cat.png", ref.URL)
	assert.Equal(t, "cat.png", ref.Name)
	assert.EqualValues(t, 6, ref.Size)
}
