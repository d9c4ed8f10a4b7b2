package core

import (
	"context"
	"encoding/json"

	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
)

type DatatypeCore struct {
	//implements echo
}

func NewDatatypeCore() DatatypeCore {
	return DatatypeCore{}
}

func (dc DatatypeCore) Name() string {
	return "Core"
}

// Echo returns the arguments unchanged.
// https://datatracker.ietf.org/doc/html/rfc8620#section-4
func (dc DatatypeCore) Echo(ctx context.Context, content json.RawMessage) (resp map[string]interface{}, mErr *mlevelerrors.MethodLevelError) {
	if err := json.Unmarshal(content, &resp); err != nil {
		return nil, mlevelerrors.NewMethodLevelErrorInvalidArguments("arguments must be an object")
	}
	if resp == nil {
		resp = map[string]interface{}{}
	}
	return resp, nil
}
