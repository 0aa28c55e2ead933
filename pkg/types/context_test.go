package types_test

import (
	"testing"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func TestScopeKeyFor(t *testing.T) {
	tests := []struct {
		level   types.SecurityLevel
		server  string
		channel string
		want    string
	}{
		{types.SecurityPrivateDM, "", "dm-42", "dm:dm-42"},
		{types.SecurityPrivateChannel, "guild-1", "mods", "channel:guild-1:mods"},
		{types.SecurityPublicChannel, "guild-1", "general", "server:guild-1"},
		{types.SecurityCrossServer, "guild-1", "general", "global"},
		{types.SecurityLevel("secret"), "guild-1", "general", ""},
		// Colons inside IDs cannot forge another scope.
		{types.SecurityPrivateChannel, "a:b", "c", "channel:a%3Ab:c"},
		{types.SecurityPrivateChannel, "a", "b:c", "channel:a:b%3Ac"},
		{types.SecurityPrivateDM, "", "a%3Ab", "dm:a%253Ab"},
		{types.SecurityPublicChannel, "a b", "c", "server:a+b"},
	}
	for _, tt := range tests {
		if got := types.ScopeKeyFor(tt.level, tt.server, tt.channel); got != tt.want {
			t.Errorf("ScopeKeyFor(%s, %q, %q) = %q, want %q", tt.level, tt.server, tt.channel, got, tt.want)
		}
	}
}

func TestScopeKeysAreDistinctForDistinctIDs(t *testing.T) {
	ids := []string{"a:b", "a%3Ab", "a%253Ab", "a%3ab", "a b", "a+b", "a%2Bb", "a", "b", "a:", ":b", ""}
	for _, level := range []types.SecurityLevel{types.SecurityPrivateDM, types.SecurityPublicChannel} {
		seen := make(map[string]string)
		for _, id := range ids {
			key := types.ScopeKeyFor(level, id, id)
			if prev, ok := seen[key]; ok {
				t.Errorf("%s: %q and %q share scope %q", level, prev, id, key)
			}
			seen[key] = id
		}
	}

	seen := make(map[string][2]string)
	for _, server := range ids {
		for _, channel := range ids {
			key := types.ScopeKeyFor(types.SecurityPrivateChannel, server, channel)
			if prev, ok := seen[key]; ok {
				t.Errorf("(%q, %q) and (%q, %q) share scope %q", prev[0], prev[1], server, channel, key)
			}
			seen[key] = [2]string{server, channel}
		}
	}
}

func TestMemoryContextScopeKey(t *testing.T) {
	c := types.MemoryContext{Type: types.ContextPublicChannel, SecurityLevel: types.SecurityPublicChannel, ServerID: "g", ChannelID: "c"}
	if got := c.ScopeKey(); got != "server:g" {
		t.Errorf("ScopeKey() = %q", got)
	}
	if !types.SecurityCrossServer.IsValid() || types.SecurityLevel("").IsValid() {
		t.Error("security level validity is wrong")
	}
}
