package mailcapability

import (
	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/capabilitier"
	"github.com/jmapd/jmapd/mlog"
	"github.com/jmapd/jmapd/store"
)

const (
	URN = "urn:ietf:params:jmap:mail"
)

type MailCapabilitySettings struct {
	MaxMailboxesPerEmail       *basetypes.Uint `json:"maxMailboxesPerEmail"`
	MaxMailboxDepth            *basetypes.Uint `json:"maxMailboxDepth"`
	MaxSizeMailboxName         basetypes.Uint  `json:"maxSizeMailboxName"`
	MaxSizeAttachmentsPerEmail basetypes.Uint  `json:"maxSizeAttachmentsPerEmail"`
	EmailQuerySortOptions      []string        `json:"emailQuerySortOptions"`
	MayCreateTopLevelMailbox   bool            `json:"mayCreateTopLevelMailbox"`
}

// NewDefaultMailCapabilitySettings is used in the session endpoint
func NewDefaultMailCapabilitySettings() MailCapabilitySettings {
	maxMailboxesPerEmail := basetypes.Uint(1)
	return MailCapabilitySettings{
		MaxMailboxesPerEmail:       &maxMailboxesPerEmail,
		MaxSizeMailboxName:         basetypes.Uint(store.MaxMailboxNameLength),
		MaxSizeAttachmentsPerEmail: 100000,
		EmailQuerySortOptions:      []string{"receivedAt", "size"},
		MayCreateTopLevelMailbox:   true,
	}
}

type MailCapability struct {
	settings  MailCapabilitySettings
	datatypes []capabilitier.Datatyper
}

func NewMailCapability(settings MailCapabilitySettings, mlog mlog.Log) *MailCapability {
	return &MailCapability{
		settings: settings,
		datatypes: []capabilitier.Datatyper{
			NewMailbox(mlog),
			NewEmail(mlog),
		},
	}
}

func (c MailCapability) Urn() string {
	return URN
}

func (c *MailCapability) SessionObjectInfo() interface{} {
	return c.settings
}

func (c *MailCapability) Datatypes() []capabilitier.Datatyper {
	return c.datatypes
}
