package routing

import "github.com/soyeahso/tagstream/internal/domain"

// Session scopes.
const (
	ScopePerSender = "per-sender"
	ScopeGlobal    = "global"
)

// ResolveSessionKey builds the session key for msg. With ScopeGlobal every
// user in a chat shares one conversation; any other scope keeps one per
// sender.
func ResolveSessionKey(msg domain.InboundMessage, scope string) domain.SessionKey {
	key := domain.SessionKey{ChannelID: msg.ChannelID, ChatID: msg.ChatID}
	if scope != ScopeGlobal {
		key.SenderID = msg.From
	}
	return key
}
