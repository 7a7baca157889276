package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTypeUnmarshal(t *testing.T) {
	var d DeviceType
	require.NoError(t, json.Unmarshal([]byte(`"4"`), &d))
	assert.Equal(t, DeviceTypeDehumidifier, d)

	require.NoError(t, json.Unmarshal([]byte(`1`), &d))
	assert.Equal(t, DeviceTypeAC, d)

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Equal(t, DeviceType(0), d)

	require.Error(t, json.Unmarshal([]byte(`"abc"`), &d))
}

func TestCommandParamUnmarshal(t *testing.T) {
	var p CommandParam
	require.NoError(t, json.Unmarshal([]byte(`["Cool", 0]`), &p))
	assert.Equal(t, "Cool", p.Label)
	assert.Equal(t, "0", p.Value)

	require.NoError(t, json.Unmarshal([]byte(`["Silent", "靜音"]`), &p))
	assert.Equal(t, "Silent", p.Label)
	assert.Equal(t, "靜音", p.Value)

	require.Error(t, json.Unmarshal([]byte(`["OnlyLabel"]`), &p))
	require.Error(t, json.Unmarshal([]byte(`[0, 1]`), &p))
}

func TestCommandParamRoundTrip(t *testing.T) {
	in := []byte(`[["Off",0],["On",1]]`)
	var params []CommandParam
	require.NoError(t, json.Unmarshal(in, &params))
	out, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, string(in), string(out))
}

func TestDeviceDecoding(t *testing.T) {
	raw := `{
		"GWID": "GW001122334455",
		"Auth": "abcdef",
		"NickName": "客廳冷氣",
		"DeviceType": "1",
		"Devices": [{"NickName": "客廳冷氣", "Model": "RX-50", "ModelType": "RX"}]
	}`
	var d Device
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, DeviceTypeAC, d.DeviceType)
	assert.Equal(t, "RX", d.CatalogModelType())
	assert.Equal(t, "RX-50", d.Detail().Model)
	assert.Equal(t, "客廳冷氣", d.DisplayName())
}

func TestDeviceFallbacks(t *testing.T) {
	d := Device{Devices: []DeviceDetail{{NickName: "書房", ModelType: "JH"}}}
	assert.Equal(t, "JH", d.CatalogModelType())
	assert.Equal(t, "書房", d.DisplayName())

	empty := Device{}
	assert.Equal(t, DeviceDetail{}, empty.Detail())
	assert.Equal(t, "", empty.CatalogModelType())
}
