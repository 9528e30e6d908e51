package netatmo

import (
	"fmt"
	"strings"
)

const (
	defaultAuthURL     = "https://app.netatmo.net/oauth2/token"
	defaultAPIURL      = "https://app.netatmo.net/api"
	defaultSetStateURL = "https://app.netatmo.net/syncapi/v1/setstate"
)

// Config defines runtime configuration for the Netatmo client.
type Config struct {
	AuthURL     string
	APIURL      string
	SetStateURL string
}

func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.AuthURL) == "" {
		c.AuthURL = defaultAuthURL
	}
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = defaultAPIURL
	}
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	if strings.TrimSpace(c.SetStateURL) == "" {
		c.SetStateURL = defaultSetStateURL
	}
	return c
}

func (c Config) validate() error {
	for name, value := range map[string]string{
		"auth_url":     c.AuthURL,
		"api_url":      c.APIURL,
		"setstate_url": c.SetStateURL,
	} {
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("netatmo %s %q is not an http(s) URL", name, value)
		}
	}
	return nil
}
