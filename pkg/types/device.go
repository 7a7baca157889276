package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DeviceType is the vendor's appliance category code.
type DeviceType int

const (
	DeviceTypeAC             DeviceType = 1
	DeviceTypeRefrigerator   DeviceType = 2
	DeviceTypeWashingMachine DeviceType = 3
	DeviceTypeDehumidifier   DeviceType = 4
	DeviceTypePurifier       DeviceType = 8
	DeviceTypeERV            DeviceType = 14
	DeviceTypeSwitch         DeviceType = 17
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeAC:
		return "AC"
	case DeviceTypeRefrigerator:
		return "refrigerator"
	case DeviceTypeWashingMachine:
		return "washing machine"
	case DeviceTypeDehumidifier:
		return "dehumidifier"
	case DeviceTypePurifier:
		return "purifier"
	case DeviceTypeERV:
		return "ERV"
	case DeviceTypeSwitch:
		return "switch"
	}
	return fmt.Sprintf("unknown(%d)", int(d))
}

// UnmarshalJSON accepts both the quoted ("1") and bare (1) forms the vendor
// uses in different responses.
func (d *DeviceType) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid device type %q: %w", s, err)
	}
	*d = DeviceType(n)
	return nil
}

// DeviceDetail is the appliance metadata nested under a gateway entry.
type DeviceDetail struct {
	NickName  string `json:"NickName"`
	Model     string `json:"Model"`
	ModelType string `json:"ModelType"`
}

// Device is one gateway entry from the vendor's registered-gateway list. The
// GWID identifies the appliance's cloud connector and is stable across poll
// cycles; Status and the report fields are filled in by the poller each cycle.
type Device struct {
	GWID       string         `json:"GWID"`
	Auth       string         `json:"Auth"`
	NickName   string         `json:"NickName"`
	DeviceType DeviceType     `json:"DeviceType"`
	ModelType  string         `json:"ModelType"`
	Devices    []DeviceDetail `json:"Devices"`

	// Status maps a command-type code ("0x00") to its raw value. It is fully
	// replaced on a successful poll; a rate-limited cycle merges overview
	// entries instead.
	Status map[string]string `json:"-"`

	// Monthly report figures; nil when the vendor has no report for this
	// gateway.
	EnergyKWH   *float64 `json:"-"`
	CO2KG       *float64 `json:"-"`
	RefOpenDoor *int     `json:"-"`
}

// Detail returns the nested appliance metadata, or the zero value when the
// vendor omitted it.
func (d Device) Detail() DeviceDetail {
	if len(d.Devices) > 0 {
		return d.Devices[0]
	}
	return DeviceDetail{}
}

// CatalogModelType returns the key used to look this device up in the command
// catalog. Newer list responses carry ModelType on the gateway entry, older
// ones only on the nested detail.
func (d Device) CatalogModelType() string {
	if d.ModelType != "" {
		return d.ModelType
	}
	return d.Detail().ModelType
}

// DisplayName returns the user-facing nickname for the device.
func (d Device) DisplayName() string {
	if d.NickName != "" {
		return d.NickName
	}
	return d.Detail().NickName
}

// CommandParam is one legal value of an enumerated command: a human label and
// the string-encoded wire value.
type CommandParam struct {
	Label string
	Value string
}

// UnmarshalJSON decodes the vendor's two-element array form, e.g.
// ["Cool", 0] or ["Silent", "靜音"].
func (p *CommandParam) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("parameter pair has %d elements, expected 2", len(raw))
	}
	label, ok := raw[0].(string)
	if !ok {
		return fmt.Errorf("parameter label is %T, expected string", raw[0])
	}
	p.Label = label
	switch v := raw[1].(type) {
	case string:
		p.Value = v
	case json.Number:
		p.Value = v.String()
	default:
		return fmt.Errorf("parameter value is %T, expected string or number", raw[1])
	}
	return nil
}

// MarshalJSON re-encodes the pair in the vendor's array form.
func (p CommandParam) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(p.Value); err == nil {
		return json.Marshal([]interface{}{p.Label, n})
	}
	return json.Marshal([]interface{}{p.Label, p.Value})
}

// CommandSpec describes one supported command of a device model: its type
// code, display name and the enumerated legal values. The parameter list is
// the single source of truth for decoding raw status values and encoding
// outgoing commands.
type CommandSpec struct {
	CommandType string         `json:"CommandType"`
	CommandName string         `json:"CommandName"`
	Parameters  []CommandParam `json:"Parameters"`
}
