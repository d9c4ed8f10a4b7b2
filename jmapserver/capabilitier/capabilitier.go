// Package capabilitier defines the interfaces a JMAP capability and its
// datatypes implement, and a lookup over the set of registered capabilities.
package capabilitier

// Capabilitier is a JMAP capability, e.g. urn:ietf:params:jmap:core.
type Capabilitier interface {
	Urn() string

	// SessionObjectInfo is the capability's entry in the session object.
	SessionObjectInfo() interface{}

	// Datatypes returns the datatypes this capability serves.
	Datatypes() []Datatyper
}

// Capabilitiers is the set of capabilities a server advertises.
type Capabilitiers []Capabilitier

// GetDatatypeByName returns the datatype with the given name, e.g. "Mailbox",
// or nil when no capability serves it.
func (cs Capabilitiers) GetDatatypeByName(name string) Datatyper {
	for _, c := range cs {
		for _, dt := range c.Datatypes() {
			if dt.Name() == name {
				return dt
			}
		}
	}
	return nil
}

// CapabilityByURN returns the capability with the given urn, or nil.
func (cs Capabilitiers) CapabilityByURN(urn string) Capabilitier {
	for _, c := range cs {
		if c.Urn() == urn {
			return c
		}
	}
	return nil
}
