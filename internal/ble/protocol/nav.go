package protocol

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// NavPrefix marks an inbound write as a navigation command.
const NavPrefix = "NAV:"

// Inbound is the result of parsing one write from the phone: either a
// NavInstruction or a RawText fallback.
type Inbound interface {
	inbound()
}

// NavInstruction is one turn-by-turn step sent by the phone as
// NAV:<current street>|<distance>|<turn>|<next street>.
type NavInstruction struct {
	CurrentStreet string `json:"current_street"`
	Distance      string `json:"distance"` // unit-bearing, e.g. "150m"
	Turn          string `json:"turn"`
	NextStreet    string `json:"next_street"`
}

// RawText is inbound content that is not a well-formed NAV command.
// NavPrefixed reports whether the content started with NavPrefix; in that
// case Text is whitespace-stripped, otherwise it is passed through verbatim.
type RawText struct {
	Text        string `json:"text"`
	NavPrefixed bool   `json:"nav_prefixed"`
}

func (NavInstruction) inbound() {}
func (RawText) inbound()        {}

// ParseInbound interprets a write to the RX characteristic. It never fails:
// anything that is not a four-field NAV command degrades to RawText.
func ParseInbound(raw []byte) Inbound {
	if !bytes.HasPrefix(raw, []byte(NavPrefix)) {
		return RawText{Text: string(raw)}
	}
	if !utf8.Valid(raw) {
		return RawText{Text: string(bytes.TrimSpace(raw)), NavPrefixed: true}
	}

	text := strings.TrimSpace(string(raw))
	_, rest, _ := strings.Cut(text, ":")
	parts := strings.Split(rest, "|")
	if len(parts) != 4 {
		return RawText{Text: text, NavPrefixed: true}
	}
	return NavInstruction{
		CurrentStreet: parts[0],
		Distance:      parts[1],
		Turn:          parts[2],
		NextStreet:    parts[3],
	}
}
