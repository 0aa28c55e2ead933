// Package security classifies calling contexts and enforces which stored
// memories a caller may observe.
//
// Visibility is expressed as scope keys. A record is written into exactly
// one scope derived from its context; a caller may read the scopes its
// lattice row grants. Anything the classifier cannot place with certainty
// resolves to private_dm, the most restrictive level.
package security

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// UnclassifiedPrefix starts the channel ID given to records written from a
// context without channel identity. Each such record gets a fresh ID, and
// no caller context ever resolves to one, so the record is unreadable.
const UnclassifiedPrefix = "unclassified:"

const (
	platformDiscord = "discord"
	platformAPI     = "api"

	channelTypeDM            = "dm"
	channelTypePrivateThread = "private_thread"
)

// Classifier maps front-end context descriptions to memory contexts.
// It never returns an error.
type Classifier struct{}

// NewClassifier returns a context classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify resolves the context of a caller. A caller without channel
// identity resolves to private_dm with no channel, which grants no scopes.
// CrossServerSafe is ignored: it describes content, not readers.
func (c *Classifier) Classify(raw types.RawContext) types.MemoryContext {
	return c.classify(raw, false)
}

// ClassifyWrite resolves the context a new record is written in. Public
// content marked CrossServerSafe is upgraded to cross_server, and a context
// without channel identity gets a fresh unclassified channel.
func (c *Classifier) ClassifyWrite(raw types.RawContext) types.MemoryContext {
	return c.classify(raw, true)
}

func (c *Classifier) classify(raw types.RawContext, write bool) types.MemoryContext {
	platform := strings.ToLower(strings.TrimSpace(raw.Platform))
	channelType := strings.ToLower(strings.TrimSpace(raw.ChannelType))

	switch {
	case platform == platformAPI:
		return directMessage(raw, write, "api caller without channel")

	case platform == platformDiscord && channelType == channelTypeDM:
		return directMessage(raw, write, "discord dm without channel")

	case platform == platformDiscord:
		if raw.ServerID == "" || raw.ChannelID == "" {
			return ambiguous(raw, write, "guild context without server or channel")
		}
		if channelType == channelTypePrivateThread || (raw.EveryoneCanRead != nil && !*raw.EveryoneCanRead) {
			return types.MemoryContext{
				Type:          types.ContextPrivateChannel,
				SecurityLevel: types.SecurityPrivateChannel,
				ServerID:      raw.ServerID,
				ChannelID:     raw.ChannelID,
				IsPrivate:     true,
			}
		}
		if raw.EveryoneCanRead == nil {
			return ambiguous(raw, write, "channel permissions unknown")
		}
		level := types.SecurityPublicChannel
		if write && raw.CrossServerSafe {
			level = types.SecurityCrossServer
		}
		return types.MemoryContext{
			Type:          types.ContextPublicChannel,
			SecurityLevel: level,
			ServerID:      raw.ServerID,
			ChannelID:     raw.ChannelID,
		}

	default:
		return ambiguous(raw, write, "unknown platform")
	}
}

// directMessage scopes a context to its own channel. Without a usable
// channel ID a record is sealed in a fresh channel and a caller gets none.
func directMessage(raw types.RawContext, write bool, reason string) types.MemoryContext {
	channelID := raw.ChannelID
	if channelID == "" || strings.HasPrefix(channelID, UnclassifiedPrefix) {
		log.Printf("security: %s (platform=%q server=%q channel=%q), unreadable private_dm",
			reason, raw.Platform, raw.ServerID, raw.ChannelID)
		channelID = ""
		if write {
			channelID = UnclassifiedPrefix + uuid.NewString()
		}
	}
	return types.MemoryContext{
		Type:          types.ContextDM,
		SecurityLevel: types.SecurityPrivateDM,
		ChannelID:     channelID,
		IsPrivate:     true,
	}
}

// ambiguous resolves an unplaceable context to private_dm scoped to its own
// channel.
func ambiguous(raw types.RawContext, write bool, reason string) types.MemoryContext {
	if raw.ChannelID != "" && !strings.HasPrefix(raw.ChannelID, UnclassifiedPrefix) {
		log.Printf("security: %s (platform=%q server=%q channel=%q), using private_dm",
			reason, raw.Platform, raw.ServerID, raw.ChannelID)
	}
	return directMessage(raw, write, reason)
}
