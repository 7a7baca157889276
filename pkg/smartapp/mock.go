package smartapp

import (
	"context"
	"strings"
	"sync"

	"github.com/smartapp-tw/smartapp/pkg/types"
)

// MockSetCall records one SetCommand invocation on the mock.
type MockSetCall struct {
	Auth    string
	Command int
	Value   string
}

// Mock is an in-memory API implementation for host-side tests. Configure the
// exported fields before use; methods are safe for concurrent callers.
type Mock struct {
	mu sync.Mutex

	// Devices is returned by GetDevicesWithInfo.
	Devices []types.Device
	// Catalog maps a model type to its command specs.
	Catalog map[string][]types.CommandSpec

	// LoginErr forces Login to fail.
	LoginErr error

	loggedIn bool
	setCalls []MockSetCall
}

// Login records a successful (or forced-failing) login.
func (m *Mock) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoginErr != nil {
		return m.LoginErr
	}
	m.loggedIn = true
	return nil
}

// LoggedIn reports whether Login succeeded.
func (m *Mock) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// GetDevicesWithInfo returns the configured device list.
func (m *Mock) GetDevicesWithInfo(ctx context.Context) ([]types.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Device, len(m.Devices))
	copy(out, m.Devices)
	return out, nil
}

// SetCommand records the call for later inspection via SetCalls.
func (m *Mock) SetCommand(ctx context.Context, auth string, command int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = append(m.setCalls, MockSetCall{Auth: auth, Command: command, Value: value})
	return nil
}

// SetCalls returns the recorded SetCommand invocations.
func (m *Mock) SetCalls() []MockSetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSetCall, len(m.setCalls))
	copy(out, m.setCalls)
	return out
}

// CommandsFor returns the configured specs for the model type.
func (m *Mock) CommandsFor(modelType string) ([]types.CommandSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Catalog == nil {
		return nil, ErrCatalogMissing
	}
	return m.Catalog[modelType], nil
}

// Decode mirrors Client.Decode against the configured catalog.
func (m *Mock) Decode(modelType, commandType, raw string) (string, error) {
	spec, err := m.spec(modelType, commandType)
	if err != nil {
		return "", err
	}
	if spec == nil {
		return "", &DecodeError{ModelType: modelType, CommandType: commandType, Raw: raw}
	}
	for _, p := range spec.Parameters {
		if p.Value == raw {
			return p.Label, nil
		}
	}
	return "", &DecodeError{ModelType: modelType, CommandType: commandType, Raw: raw}
}

// Encode mirrors Client.Encode against the configured catalog.
func (m *Mock) Encode(modelType, commandType, label string) (string, error) {
	spec, err := m.spec(modelType, commandType)
	if err != nil {
		return "", err
	}
	if spec == nil {
		return "", &UnsupportedOptionError{ModelType: modelType, CommandType: commandType, Label: label}
	}
	for _, p := range spec.Parameters {
		if p.Label == label {
			return p.Value, nil
		}
	}
	return "", &UnsupportedOptionError{ModelType: modelType, CommandType: commandType, Label: label}
}

func (m *Mock) spec(modelType, commandType string) (*types.CommandSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Catalog == nil {
		return nil, ErrCatalogMissing
	}
	for _, spec := range m.Catalog[modelType] {
		if strings.EqualFold(spec.CommandType, commandType) {
			return &spec, nil
		}
	}
	return nil, nil
}
