// Package session groups on-chain call events into play sessions and attaches
// the achievements unlocked during each one.
package session

import "strings"

// Denylist matches entrypoints that are protocol bookkeeping rather than
// player actions. Entries ending in "*" match by prefix.
type Denylist struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewDenylist builds a denylist from exact names and "prefix*" patterns
func NewDenylist(entries ...string) *Denylist {
	d := &Denylist{exact: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "*") {
			d.prefixes = append(d.prefixes, strings.TrimSuffix(e, "*"))
			continue
		}
		d.exact[e] = struct{}{}
	}
	return d
}

// Blocks reports whether an entrypoint is excluded from sessions
func (d *Denylist) Blocks(entrypoint string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.exact[entrypoint]; ok {
		return true
	}
	for _, p := range d.prefixes {
		if strings.HasPrefix(entrypoint, p) {
			return true
		}
	}
	return false
}

// DefaultDenylist holds the world and meta-protocol entrypoints: registration,
// metadata, upgrades, permissions, randomness bookkeeping and session-key
// wrappers.
var DefaultDenylist = NewDenylist(
	"request_random",
	"submit_random",
	"assert_consumed",
	"consume_random",
	"register_*",
	"set_metadata",
	"set_entity",
	"set_entities",
	"delete_entity",
	"delete_entities",
	"emit_event",
	"emit_events",
	"upgrade*",
	"grant_*",
	"revoke_*",
	"init_contract",
	"dojo_init",
	"uuid",
	"execute_from_outside",
	"execute_from_outside_v2",
	"execute_from_outside_v3",
)
