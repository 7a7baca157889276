package smartapp

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
	"golang.org/x/time/rate"

	"github.com/smartapp-tw/smartapp/pkg/common"
)

// Configured sets up a Client from lflag-registered flags. The returned
// Client is usable after lflag.Configure has run.
func Configured() *Client {
	account := lflag.RequiredString("smartapp-account", "Panasonic Smart App account (email)")
	password := lflag.RequiredString("smartapp-password", "Panasonic Smart App password")
	proxy := lflag.String("smartapp-proxy", "", "Optional proxy URL for vendor API requests")
	baseURL := lflag.String("smartapp-base-url", defaultBaseURL, "Vendor API base URL")

	c := &Client{}
	lflag.Do(func() {
		httpClient, err := common.HTTPClient(requestTimeout, *proxy)
		if err != nil {
			panic(fmt.Errorf("invalid smartapp-proxy: %w", err))
		}
		c.client = httpClient
		c.baseURL = *baseURL
		c.account = *account
		c.password = *password
		c.limiter = rate.NewLimiter(rate.Every(secondsBetweenRequest), 1)
	})
	return c
}
