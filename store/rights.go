package store

import "strings"

// Right codes for shared mailboxes, the RFC 4314 set. A rights string is a
// concatenation of codes, e.g. "lr".
const (
	RightLookup         = 'l'
	RightRead           = 'r'
	RightKeepSeen       = 's'
	RightWrite          = 'w'
	RightInsert         = 'i'
	RightPost           = 'p'
	RightExpunge        = 'e'
	RightDeleteMessages = 't'
	RightDeleteMailbox  = 'x'
	RightAdminister     = 'a'
)

// KnownRights holds all valid right codes.
const KnownRights = "lrswipetxa"

// AllRights is the rights string granting everything.
const AllRights = KnownRights

// ValidRight reports whether s is exactly one known right code.
func ValidRight(s string) bool {
	return len(s) == 1 && strings.ContainsRune(KnownRights, rune(s[0]))
}

// HasRight reports whether user holds right r on mb. The owner holds all
// rights implicitly.
func (mb Mailbox) HasRight(user string, r rune) bool {
	if user == mb.Owner {
		return true
	}
	return strings.ContainsRune(mb.Rights[user], r)
}

// Visible reports whether user may know about the existence of mb.
func (mb Mailbox) Visible(user string) bool {
	return mb.HasRight(user, RightLookup)
}
