package smartapp

import (
	"time"

	"github.com/smartapp-tw/smartapp/pkg/types"
)

const (
	defaultBaseURL = "https://ems2.panasonic.com.tw/api"

	// appToken is the mobile app's fixed token, required on login.
	appToken = "D8CBFF4C-2824-4342-B22D-189166FEF503"

	// The vendor rate limits per account, so every request is paced to at
	// least this far apart regardless of which operation issued it.
	secondsBetweenRequest = 2 * time.Second
	requestTimeout        = 20 * time.Second

	// CommandsPerRequest bounds how many status codes a single DeviceGetInfo
	// call may carry; larger requests are rejected by the vendor.
	CommandsPerRequest = 6

	// overviewRetryLimit bounds re-fetches of the overview endpoint while it
	// still returns empty placeholder values for a device.
	overviewRetryLimit = 3
)

const (
	pathLogin          = "Userlogin1"
	pathRefreshToken   = "RefreshToken1"
	pathGetDevices     = "UserGetRegisteredGwList2"
	pathDeviceGetInfo  = "DeviceGetInfo"
	pathDeviceOverview = "UserGetDeviceStatus"
	pathSetCommand     = "DeviceSetCommand"
	pathUserGetInfo    = "UserGetInfo"
)

// StateMsg values returned by the vendor with a 417 status. These are exact
// strings observed from the cloud; anything unrecognized is treated as a
// generic login failure.
const (
	stateMsgDeviceOffline       = "deviceOffline"
	stateMsgDeviceNoResponse    = "deviceNoResponse"
	stateMsgDeviceJPInfo        = "503:DeviceJPInfo:aStatusCode"
	stateMsgDeviceJPFailed      = ":DeviceJPInfo:GetCommandTransResult failed"
	stateMsgCPTokenExpired      = "此CPToken已經逾時"
	stateMsgCPTokenInvalid      = "無法依據您的CPToken,auth取得相關資料"
	stateMsgInvalidRefreshToken = "無效RefreshToken"
	stateMsgRateLimited         = "系統檢測您當前超量使用"
)

// DeviceStatusCodes maps each appliance category to the status codes polled
// for it every cycle. A code absent here is never requested for that type.
var DeviceStatusCodes = map[types.DeviceType][]string{
	types.DeviceTypeAC: {
		"0x00", // power
		"0x01", // operation mode
		"0x04", // current temperature
		"0x03", // target temperature
		"0x02", // fan level
		"0x0F", // fan position (horizontal)
		"0x21", // outdoor temperature
		"0x0B", // on timer
		"0x0C", // off timer
		"0x08", // nanoeX
		"0x1B", // ECONAVI
		"0x1E", // buzzer
		"0x1A", // turbo mode
		"0x18", // self clean
		"0x05", // sleep mode
		"0x17", // mold prevention
		"0x11", // fan position (vertical)
		"0x19", // motion detection
		"0x1F", // indicator light
		"0x37", // PM2.5
	},
	types.DeviceTypeRefrigerator: {
		"0x00", // freezer temperature setting
		"0x01", // refrigerator temperature setting
		"0x57", // partial freezing temperature setting
		"0x03", // freezer temperature display
		"0x05", // refrigerator temperature display
		"0x58", // partial freezing temperature display
		"0x50", // defrosting status
		"0x0C", // ECO status
		"0x61", // nanoe status
		"0x52", // stop ice making
		"0x53", // quick ice making
		"0x56", // rapid freezing
		"0x5A", // winter mode
		"0x5B", // shopping mode
		"0x5C", // vacation mode
	},
	types.DeviceTypeWashingMachine: {
		"0x13", // remaining washing time
		"0x14", // timer
		"0x15", // remaining time to trigger timer
		"0x41", // timer (JP models)
		"0x50", // status
		"0x54", // current mode
		"0x55", // current cycle
		"0x61", // dryer delay
		"0x64", // cycle
	},
	types.DeviceTypeDehumidifier: {
		"0x00", // power
		"0x01", // operation mode
		"0x02", // off timer
		"0x07", // humidity sensor
		"0x09", // fan direction
		"0x0D", // nanoe
		"0x50",
		"0x18", // buzzer
		"0x53", // PM2.5
		"0x55", // on timer
		"0x0A", // tank status
		"0x04", // target humidity
		"0x0E", // fan mode
		"0x56", // PM1.0
	},
	types.DeviceTypePurifier: {
		"0x00", // power
		"0x01", // fan level
		"0x07", // nanoeX
		"0x50", // PM2.5
	},
	types.DeviceTypeERV: {
		"0x00", // power
		"0x15", // operation mode
		"0x56", // fan level
	},
	types.DeviceTypeSwitch: {
		"0x70", // power
	},
}

type paramTranslation struct {
	label string
	// match is compared against the wire parameter's encoded value first and
	// its original label second.
	match string
}

type commandTranslation struct {
	name   string
	params []paramTranslation
}

// dehumidifierTranslations replaces the vendor's Chinese dehumidifier command
// and parameter names with English equivalents when the catalog is built.
var dehumidifierTranslations = map[string]commandTranslation{
	"0x00": {name: "Power", params: []paramTranslation{
		{"Off", "0"}, {"On", "1"},
	}},
	"0x01": {name: "Mode", params: []paramTranslation{
		{"Continuous dehumidification", "0"},
		{"Automatic dehumidification", "1"},
		{"Anti-mildew", "2"},
		{"Fan mode", "3"},
		{"ECONAVI", "4"},
		{"Keep dry", "5"},
		{"Target humidity", "6"},
		{"Air purification", "7"},
		{"AI comfort", "8"},
		{"Energy saving", "9"},
		{"Quick dehumidification", "10"},
		{"Silent dehumidification", "11"},
		{"Shoe drying", "12"},
	}},
	"0x02": {name: "Off timer"},
	"0x04": {name: "Target humidity", params: []paramTranslation{
		{"40%", "0"}, {"45%", "1"}, {"50%", "2"}, {"55%", "3"},
		{"60%", "4"}, {"65%", "5"}, {"70%", "6"},
	}},
	"0x09": {name: "Swing", params: []paramTranslation{
		{"Fixed", "0"}, {"Downward", "1"}, {"Upward", "2"}, {"Swing", "3"},
	}},
	"0x0d": {name: "nanoe", params: []paramTranslation{
		{"Off", "0"}, {"On", "1"},
	}},
	"0x0e": {name: "Fan speed", params: []paramTranslation{
		{"Auto", "0"}, {"Silent", "靜音"}, {"Normal", "標準"}, {"High", "急速"},
	}},
	"0x18": {name: "Buzzer", params: []paramTranslation{
		{"On", "0"}, {"Off", "1"},
	}},
	"0x55": {name: "On timer"},
	"0x59": {name: "Mildew prevention", params: []paramTranslation{
		{"Off", "0"}, {"On", "1"},
	}},
}
