package types

import "net/url"

// ContextType is the conversational origin of a request.
type ContextType string

const (
	ContextDM             ContextType = "dm"
	ContextPublicChannel  ContextType = "public_channel"
	ContextPrivateChannel ContextType = "private_channel"
)

// SecurityLevel labels which calling contexts may observe a record. Levels
// form a compatibility lattice rather than a total order.
type SecurityLevel string

const (
	SecurityPrivateDM      SecurityLevel = "private_dm"
	SecurityPrivateChannel SecurityLevel = "private_channel"
	SecurityPublicChannel  SecurityLevel = "public_channel"
	SecurityCrossServer    SecurityLevel = "cross_server"
)

// AllSecurityLevels lists every level, most restrictive first.
var AllSecurityLevels = []SecurityLevel{
	SecurityPrivateDM,
	SecurityPrivateChannel,
	SecurityPublicChannel,
	SecurityCrossServer,
}

// IsValid reports whether l is a known security level.
func (l SecurityLevel) IsValid() bool {
	for _, known := range AllSecurityLevels {
		if l == known {
			return true
		}
	}
	return false
}

// MemoryContext is the classified form of a calling context.
type MemoryContext struct {
	Type          ContextType   `json:"context_type"`
	SecurityLevel SecurityLevel `json:"security_level"`
	ServerID      string        `json:"server_id,omitempty"`
	ChannelID     string        `json:"channel_id"`
	IsPrivate     bool          `json:"is_private"`
}

// ScopeKey returns the storage partition a record written from this context
// belongs to. Two contexts share a scope key only when a record written in
// one may be read in the other at the record's own level.
func (c MemoryContext) ScopeKey() string {
	return ScopeKeyFor(c.SecurityLevel, c.ServerID, c.ChannelID)
}

// ScopeKeyFor builds the scope key for a record of the given level written
// in the given server and channel.
func ScopeKeyFor(level SecurityLevel, serverID, channelID string) string {
	switch level {
	case SecurityPrivateDM:
		return "dm:" + escapeScope(channelID)
	case SecurityPrivateChannel:
		return "channel:" + escapeScope(serverID) + ":" + escapeScope(channelID)
	case SecurityPublicChannel:
		return "server:" + escapeScope(serverID)
	case SecurityCrossServer:
		return "global"
	default:
		return ""
	}
}

// escapeScope query-escapes an ID so that no two IDs share an encoding and
// none contains the ':' separator.
func escapeScope(id string) string {
	return url.QueryEscape(id)
}

// RawContext is the unclassified description of where a message came from,
// as reported by the front-end.
type RawContext struct {
	Platform    string `json:"platform"`               // "discord", "api", ...
	ChannelType string `json:"channel_type,omitempty"` // "dm", "text", "thread", "private_thread"
	ServerID    string `json:"server_id,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`

	// EveryoneCanRead reports whether the server's default role can read the
	// channel. Nil means unknown.
	EveryoneCanRead *bool `json:"everyone_can_read,omitempty"`

	// CrossServerSafe marks content from a public channel as safe to share
	// across servers. It has no effect on private contexts.
	CrossServerSafe bool `json:"cross_server_safe,omitempty"`
}
