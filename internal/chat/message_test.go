package chat

import (
	"errors"
	"testing"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		ok    bool
	}{
		{"new message", `{"type":"new_message","message":{"id":"m1","conversation_id":"c"}}`, true},
		{"new message without message", `{"type":"new_message"}`, false},
		{"new message without id", `{"type":"new_message","message":{"conversation_id":"c"}}`, false},
		{"ack", `{"type":"message_ack","correlation_id":"c1"}`, true},
		{"ack without correlation", `{"type":"message_ack"}`, false},
		{"edit", `{"type":"message_edited","message_id":"m1","content":"x"}`, true},
		{"reaction without user", `{"type":"message_reaction","message_id":"m1"}`, false},
		{"typing", `{"type":"typing_start","conversation_id":"c","user_id":"u","ttl_ms":3000}`, true},
		{"presence bad status", `{"type":"presence_update","user_id":"u","status":"asleep"}`, false},
		{"presence", `{"type":"presence_update","user_id":"u","status":"away"}`, true},
		{"resync", `{"type":"resync_required","conversation_id":"c"}`, true},
		{"conversation updated without body", `{"type":"conversation_updated"}`, false},
		{"unknown type", `{"type":"mystery"}`, false},
		{"no type", `{}`, false},
		{"not json", `{nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.frame))
			if tt.ok {
				require.NoError(t, err)
				assert.NotEmpty(t, ev.Type)
				return
			}
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestDecodeEventKeepsTTL(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"typing_start","conversation_id":"c","user_id":"u","ttl_ms":3000}`))
	require.NoError(t, err)
	assert.EqualValues(t, 3000, ev.TTLMillis)
}

func TestValidateIntent(t *testing.T) {
	heart := "❤️"
	tests := []struct {
		name  string
		in    Intent
		field string
	}{
		{"send", Intent{Type: IntentSend, ConversationID: "c", Content: "hi"}, ""},
		{"send media only", Intent{Type: IntentSend, ConversationID: "c", Kind: models.KindImage, Media: &models.MediaRef{URL: "u"}}, ""},
		{"send without conversation", Intent{Type: IntentSend, Content: "hi"}, "ConversationID"},
		{"send empty", Intent{Type: IntentSend, ConversationID: "c"}, "Content"},
		{"bad kind", Intent{Type: IntentSend, ConversationID: "c", Content: "x", Kind: "gif"}, "Kind"},
		{"edit without content", Intent{Type: IntentEdit, MessageID: "m"}, "Content"},
		{"react", Intent{Type: IntentReact, MessageID: "m", ReactionType: "love", Emoji: &heart}, ""},
		{"remove reaction", Intent{Type: IntentReact, MessageID: "m"}, ""},
		{"away is not settable", Intent{Type: IntentSetPresence, Status: models.Away}, "Status"},
		{"busy", Intent{Type: IntentSetPresence, Status: models.Busy}, ""},
		{"heartbeat", Intent{Type: IntentHeartbeat}, ""},
		{"unknown", Intent{Type: "shout"}, "Type"},
		{"empty", Intent{}, "Type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntent(tt.in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			var fields []string
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestActionRoundTrip(t *testing.T) {
	in := Intent{Type: IntentEdit, CorrelationID: "c9", MessageID: "m1", Content: "fixed"}
	a, err := toAction(in)
	require.NoError(t, err)
	assert.Equal(t, "c9", a.CorrelationID)

	back, err := fromAction(a)
	require.NoError(t, err)
	assert.Equal(t, in, back)

	_, err = toAction(Intent{Type: IntentTyping})
	assert.Error(t, err)
}
