package smartapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartapp-tw/smartapp/pkg/log"
	"github.com/smartapp-tw/smartapp/pkg/types"
)

// flexString tolerates the vendor returning a field as either a JSON string
// or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

type deviceInfoRequest struct {
	CommandTypes []commandTypeRef `json:"CommandTypes"`
	DeviceID     int              `json:"DeviceID"`
}

type commandTypeRef struct {
	CommandType string `json:"CommandType"`
}

type deviceInfoResponse struct {
	Devices []struct {
		Info []struct {
			CommandType string     `json:"CommandType"`
			Status      flexString `json:"status"`
		} `json:"Info"`
	} `json:"devices"`
}

type overviewResponse struct {
	GwList []struct {
		GWID string `json:"GWID"`
		List []struct {
			CommandType string     `json:"CommandType"`
			Status      flexString `json:"Status"`
		} `json:"List"`
	} `json:"GwList"`
}

type reportRequest struct {
	Name   string `json:"name"`
	From   string `json:"from"`
	Unit   string `json:"unit"`
	MaxNum int    `json:"max_num"`
}

type reportResponse struct {
	GwList []reportEntry `json:"GwList"`
}

type reportEntry struct {
	GwID             flexString `json:"GwID"`
	TotalKWH         flexString `json:"Total_kwh"`
	TotalKG          flexString `json:"Total_kg"`
	RefOpenDoorTotal flexString `json:"Ref_OpenDoor_Total"`
}

// GetDeviceInfo fetches the raw status values for one chunk of command types
// on a single device.
func (c *Client) GetDeviceInfo(ctx context.Context, auth, gwid string, commandTypes []string) (map[string]string, error) {
	refs := make([]commandTypeRef, len(commandTypes))
	for i, ct := range commandTypes {
		refs[i] = commandTypeRef{CommandType: ct}
	}
	body := []deviceInfoRequest{{CommandTypes: refs, DeviceID: 1}}

	var res deviceInfoResponse
	err := c.authed(ctx, func(ctx context.Context, token string) error {
		h := http.Header{}
		h.Set("cptoken", token)
		h.Set("auth", auth)
		h.Set("gwid", gwid)
		return c.request(ctx, http.MethodPost, pathDeviceGetInfo, h, nil, body, &res)
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	if len(res.Devices) == 0 {
		return result, nil
	}
	for _, info := range res.Devices[0].Info {
		result[info.CommandType] = string(info.Status)
	}
	return result, nil
}

// GetOverview fetches the coarse bulk status endpoint covering all devices,
// keyed by GWID. Lower fidelity than GetDeviceInfo but far less rate limited.
func (c *Client) GetOverview(ctx context.Context) (map[string]map[string]string, error) {
	var res overviewResponse
	err := c.authed(ctx, func(ctx context.Context, token string) error {
		h := http.Header{}
		h.Set("cptoken", token)
		return c.request(ctx, http.MethodGet, pathDeviceOverview, h, nil, nil, &res)
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]map[string]string)
	for _, device := range res.GwList {
		statuses := make(map[string]string, len(device.List))
		for _, info := range device.List {
			statuses[info.CommandType] = string(info.Status)
		}
		result[device.GWID] = statuses
	}
	return result, nil
}

func (c *Client) getReport(ctx context.Context, name string) ([]reportEntry, error) {
	now := time.Now()
	body := reportRequest{
		Name:   name,
		From:   time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006/01/02"),
		Unit:   "day",
		MaxNum: 31,
	}
	var res reportResponse
	err := c.authed(ctx, func(ctx context.Context, token string) error {
		h := http.Header{}
		h.Set("cptoken", token)
		return c.request(ctx, http.MethodPost, pathUserGetInfo, h, nil, body, &res)
	})
	if err != nil {
		return nil, err
	}
	return res.GwList, nil
}

// GetEnergyReport returns this month's energy consumption in kWh per gateway.
// Gateways without a figure are simply absent.
func (c *Client) GetEnergyReport(ctx context.Context) (map[string]float64, error) {
	entries, err := c.getReport(ctx, "Power")
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64)
	for i, e := range entries {
		if e.GwID == "" {
			continue
		}
		v, err := strconv.ParseFloat(string(e.TotalKWH), 64)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "no energy data for device", slog.Int("index", i))
			continue
		}
		result[string(e.GwID)] = v
	}
	return result, nil
}

// GetCO2Report returns this month's CO2 footprint in kg per gateway.
func (c *Client) GetCO2Report(ctx context.Context) (map[string]float64, error) {
	entries, err := c.getReport(ctx, "CO2")
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64)
	for i, e := range entries {
		if e.GwID == "" {
			continue
		}
		v, err := strconv.ParseFloat(string(e.TotalKG), 64)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "no CO2 data for device", slog.Int("index", i))
			continue
		}
		result[string(e.GwID)] = v
	}
	return result, nil
}

// GetRefOpenDoorReport returns this month's refrigerator door-open count per
// gateway.
func (c *Client) GetRefOpenDoorReport(ctx context.Context) (map[string]int, error) {
	entries, err := c.getReport(ctx, "Other")
	if err != nil {
		return nil, err
	}
	result := make(map[string]int)
	for i, e := range entries {
		if e.GwID == "" {
			continue
		}
		v, err := strconv.Atoi(string(e.RefOpenDoorTotal))
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "no door-open data for device", slog.Int("index", i))
			continue
		}
		result[string(e.GwID)] = v
	}
	return result, nil
}

// GetDevicesWithInfo runs one full refresh cycle: fetch the device list and
// the monthly reports concurrently, then poll each device's status codes in
// chunks, degrading to the overview endpoint when the vendor throttles. One
// device's failure never aborts the cycle for the others.
func (c *Client) GetDevicesWithInfo(ctx context.Context) ([]types.Device, error) {
	var (
		devices  []types.Device
		energy   map[string]float64
		co2      map[string]float64
		doorOpen map[string]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		devices, err = c.GetDevices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		energy, err = c.GetEnergyReport(gctx)
		return degradeRateLimit(gctx, err, "energy")
	})
	g.Go(func() error {
		var err error
		co2, err = c.GetCO2Report(gctx)
		return degradeRateLimit(gctx, err, "CO2")
	})
	g.Go(func() error {
		var err error
		doorOpen, err = c.GetRefOpenDoorReport(gctx)
		return degradeRateLimit(gctx, err, "door-open")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overview := &overviewCache{client: c}
	for i := range devices {
		d := &devices[i]
		if v, ok := energy[d.GWID]; ok {
			d.EnergyKWH = &v
		}
		if v, ok := co2[d.GWID]; ok {
			d.CO2KG = &v
		}
		if v, ok := doorOpen[d.GWID]; ok {
			d.RefOpenDoor = &v
		}

		codes, ok := DeviceStatusCodes[d.DeviceType]
		if !ok {
			continue
		}
		d.Status = make(map[string]string)

		var rateLimited bool
		for _, chunk := range chunkStrings(codes, CommandsPerRequest) {
			info, err := c.GetDeviceInfo(ctx, d.Auth, d.GWID, chunk)
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					rateLimited = true
					break
				}
				if ctx.Err() != nil {
					// keep whatever was merged; partial results stay valid
					return devices, ctx.Err()
				}
				log.Ctx(ctx).WarnContext(ctx, "device poll failed",
					slog.String("device", d.DisplayName()),
					slog.Any("error", err),
				)
				break
			}
			for code, value := range info {
				d.Status[code] = value
			}
		}

		if rateLimited {
			log.Ctx(ctx).WarnContext(ctx, "rate limited, falling back to overview",
				slog.String("device", d.DisplayName()),
			)
			ov, err := overview.statusFor(ctx, d.GWID)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "overview fallback failed",
					slog.String("device", d.DisplayName()),
					slog.Any("error", err),
				)
				continue
			}
			for code, value := range ov {
				d.Status[code] = value
			}
		}
	}

	return devices, nil
}

// degradeRateLimit lets a throttled report fetch degrade to "no report"
// instead of failing the whole cycle.
func degradeRateLimit(ctx context.Context, err error, report string) error {
	if errors.Is(err, ErrRateLimited) {
		log.Ctx(ctx).WarnContext(ctx, "report fetch rate limited, skipping", slog.String("report", report))
		return nil
	}
	return err
}

// overviewCache holds the bulk overview for one poll cycle so multiple
// throttled devices share a single fetch. The overview may lag behind the
// vendor's report generation and return empty placeholder values; statusFor
// re-fetches a bounded number of times while that is the case.
type overviewCache struct {
	client  *Client
	all     map[string]map[string]string
	fetched bool
}

func (o *overviewCache) statusFor(ctx context.Context, gwid string) (map[string]string, error) {
	for attempt := 0; attempt < overviewRetryLimit; attempt++ {
		if !o.fetched || attempt > 0 {
			all, err := o.client.GetOverview(ctx)
			if err != nil {
				return nil, err
			}
			o.all = all
			o.fetched = true
		}
		statuses := o.all[gwid]
		if !hasEmptyValues(statuses) {
			return statuses, nil
		}
		log.Ctx(ctx).DebugContext(ctx, "overview has placeholder values, retrying",
			slog.String("gwid", gwid),
			slog.Int("attempt", attempt+1),
		)
	}
	// best effort after the retry bound
	return o.all[gwid], nil
}

func hasEmptyValues(statuses map[string]string) bool {
	for _, v := range statuses {
		if v == "" {
			return true
		}
	}
	return false
}

// chunkStrings partitions values into slices of at most size elements,
// preserving order.
func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}
