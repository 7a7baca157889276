package smartapp

import (
	"context"

	"github.com/smartapp-tw/smartapp/pkg/types"
)

// API is the surface a home-automation host consumes: one refresh operation
// producing the full device list with merged status and report fields, one
// set-command operation, and the catalog lookups needed to present and
// validate enumerated values.
type API interface {
	// Login authenticates and stores the session tokens.
	Login(ctx context.Context) error

	// GetDevicesWithInfo runs one full refresh cycle and returns every
	// registered device with its status map and monthly report fields filled
	// in, degraded where the vendor throttled or a device was unreachable.
	GetDevicesWithInfo(ctx context.Context) ([]types.Device, error)

	// SetCommand issues one control command to the device identified by its
	// auth key. Callers re-poll to observe the effect.
	SetCommand(ctx context.Context, auth string, command int, value string) error

	// CommandsFor returns the catalog entries for a device model type.
	CommandsFor(modelType string) ([]types.CommandSpec, error)

	// Decode translates a raw status value into its catalog label.
	Decode(modelType, commandType, raw string) (string, error)

	// Encode translates a catalog label into the wire value for SetCommand.
	Encode(modelType, commandType, label string) (string, error)
}

var _ API = (*Client)(nil)
var _ API = (*Mock)(nil)
