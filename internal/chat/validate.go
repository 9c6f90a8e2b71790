package chat

import (
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(intentRules, Intent{})
	return v
}

// intentRules reports the fields each intent type requires.
func intentRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(Intent)
	need := func(ok bool, value any, field string) {
		if !ok {
			sl.ReportError(value, field, field, "required", "")
		}
	}
	switch in.Type {
	case IntentJoin, IntentLeave:
		need(in.ConversationID != "", in.ConversationID, "ConversationID")
	case IntentSend:
		need(in.ConversationID != "", in.ConversationID, "ConversationID")
		need(in.Content != "" || in.Media != nil, in.Content, "Content")
	case IntentEdit:
		need(in.MessageID != "", in.MessageID, "MessageID")
		need(in.Content != "", in.Content, "Content")
	case IntentDelete, IntentMarkRead:
		need(in.MessageID != "", in.MessageID, "MessageID")
	case IntentReact:
		need(in.MessageID != "", in.MessageID, "MessageID")
	case IntentTyping:
		need(in.ConversationID != "", in.ConversationID, "ConversationID")
	case IntentSetPresence:
		need(in.Status.Valid() && in.Status != models.Away, in.Status, "Status")
	case IntentHeartbeat, IntentSync:
	default:
		sl.ReportError(in.Type, "Type", "Type", "oneof", "")
	}
}

// ValidateIntent checks an intent before it is applied or sent. Errors are
// validator.ValidationErrors.
func ValidateIntent(in Intent) error {
	return validate.Struct(in)
}
