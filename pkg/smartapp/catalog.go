package smartapp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/smartapp-tw/smartapp/pkg/log"
	"github.com/smartapp-tw/smartapp/pkg/types"
)

type gwListResponse struct {
	GwList      []types.Device  `json:"GwList"`
	CommandList []modelCommands `json:"CommandList"`
}

type modelCommands struct {
	ModelType string           `json:"ModelType"`
	JSON      []deviceCommands `json:"JSON"`
}

type deviceCommands struct {
	DeviceType types.DeviceType    `json:"DeviceType"`
	List       []types.CommandSpec `json:"list"`
}

type catalogKey struct {
	modelType   string
	commandType string
}

// catalog is the typed command table built once per device-list fetch.
// Lookups are O(1) on (modelType, commandType); command types are normalized
// lowercase because the vendor mixes "0x0E" and "0x0e".
type catalog struct {
	specs   map[catalogKey]types.CommandSpec
	byModel map[string][]types.CommandSpec
}

// GetDevices fetches the registered gateway list and, from the same response,
// rebuilds the command catalog. The previous catalog stays valid until this
// succeeds.
func (c *Client) GetDevices(ctx context.Context) ([]types.Device, error) {
	var res gwListResponse
	err := c.authed(ctx, func(ctx context.Context, token string) error {
		h := http.Header{}
		h.Set("cptoken", token)
		return c.request(ctx, http.MethodGet, pathGetDevices, h, nil, nil, &res)
	})
	if err != nil {
		return nil, err
	}
	if res.GwList == nil && res.CommandList == nil {
		// degraded empty result, keep whatever we had
		return nil, nil
	}

	cat := buildCatalog(ctx, res.CommandList)
	c.catMu.Lock()
	c.devices = res.GwList
	c.catalog = cat
	c.catMu.Unlock()

	log.Ctx(ctx).DebugContext(ctx, "refreshed device list",
		slog.Int("devices", len(res.GwList)),
		slog.Int("models", len(cat.byModel)),
	)
	return res.GwList, nil
}

// Devices returns the device list from the last successful GetDevices.
func (c *Client) Devices() []types.Device {
	c.catMu.Lock()
	defer c.catMu.Unlock()
	return c.devices
}

func buildCatalog(ctx context.Context, list []modelCommands) *catalog {
	cat := &catalog{
		specs:   make(map[catalogKey]types.CommandSpec),
		byModel: make(map[string][]types.CommandSpec),
	}
	for _, mc := range list {
		for _, dc := range mc.JSON {
			specs := make([]types.CommandSpec, len(dc.List))
			copy(specs, dc.List)
			if dc.DeviceType == types.DeviceTypeDehumidifier {
				translateDehumidifier(ctx, specs)
			}
			cat.byModel[mc.ModelType] = append(cat.byModel[mc.ModelType], specs...)
			for _, spec := range specs {
				key := catalogKey{mc.ModelType, strings.ToLower(spec.CommandType)}
				cat.specs[key] = spec
			}
		}
	}
	return cat
}

// translateDehumidifier rewrites the vendor's Chinese dehumidifier command and
// parameter names with the known English equivalents. Entries without a
// translation are left as received.
func translateDehumidifier(ctx context.Context, specs []types.CommandSpec) {
	for i, spec := range specs {
		tr, ok := dehumidifierTranslations[strings.ToLower(spec.CommandType)]
		if !ok {
			continue
		}
		log.Ctx(ctx).DebugContext(ctx, "translating dehumidifier command",
			slog.String("commandType", spec.CommandType),
			slog.String("from", spec.CommandName),
			slog.String("to", tr.name),
		)
		specs[i].CommandName = tr.name

		params := make([]types.CommandParam, len(spec.Parameters))
		copy(params, spec.Parameters)
		for pi, param := range params {
			if label, ok := translateParam(tr, param); ok {
				params[pi].Label = label
			}
		}
		specs[i].Parameters = params
	}
}

// translateParam matches a translation entry against the parameter's encoded
// value first and its original label second.
func translateParam(tr commandTranslation, param types.CommandParam) (string, bool) {
	for _, pt := range tr.params {
		if pt.match == param.Value {
			return pt.label, true
		}
	}
	for _, pt := range tr.params {
		if pt.match == param.Label {
			return pt.label, true
		}
	}
	return "", false
}

// CommandsFor returns the commands supported by the given device model type.
// A model absent from the catalog yields an empty list, not an error.
func (c *Client) CommandsFor(modelType string) ([]types.CommandSpec, error) {
	c.catMu.Lock()
	defer c.catMu.Unlock()
	if c.catalog == nil {
		return nil, ErrCatalogMissing
	}
	return c.catalog.byModel[modelType], nil
}

// Decode translates a raw status value into its catalog label.
func (c *Client) Decode(modelType, commandType, raw string) (string, error) {
	c.catMu.Lock()
	defer c.catMu.Unlock()
	if c.catalog == nil {
		return "", ErrCatalogMissing
	}
	spec, ok := c.catalog.specs[catalogKey{modelType, strings.ToLower(commandType)}]
	if !ok {
		return "", &DecodeError{ModelType: modelType, CommandType: commandType, Raw: raw}
	}
	for _, p := range spec.Parameters {
		if p.Value == raw {
			return p.Label, nil
		}
	}
	return "", &DecodeError{ModelType: modelType, CommandType: commandType, Raw: raw}
}

// Encode translates a desired label into the wire value for a set-command
// call.
func (c *Client) Encode(modelType, commandType, label string) (string, error) {
	c.catMu.Lock()
	defer c.catMu.Unlock()
	if c.catalog == nil {
		return "", ErrCatalogMissing
	}
	spec, ok := c.catalog.specs[catalogKey{modelType, strings.ToLower(commandType)}]
	if !ok {
		return "", &UnsupportedOptionError{ModelType: modelType, CommandType: commandType, Label: label}
	}
	for _, p := range spec.Parameters {
		if p.Label == label {
			return p.Value, nil
		}
	}
	return "", &UnsupportedOptionError{ModelType: modelType, CommandType: commandType, Label: label}
}
