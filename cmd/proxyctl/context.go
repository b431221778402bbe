package main

import (
	"net/http"
	"strings"
	"time"
)

type commandContext struct {
	serverFlag *string
	jsonFlag   *bool
}

func newCommandContext(serverFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) client() *apiClient {
	base := defaultServer
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		base = strings.TrimSpace(*c.serverFlag)
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}
