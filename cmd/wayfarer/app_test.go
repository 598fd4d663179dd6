package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rahul/wayfarer/pkg/config"
)

func TestBrowserOptionsShowWindowInDebug(t *testing.T) {
	cfg := &config.Config{}
	cfg.Browser.Engine = "playwright"
	cfg.Browser.Headless = true
	cfg.Browser.ViewportWidth = 1024
	cfg.Browser.Timeout = 5 * time.Second

	opts := browserOptions(cfg)
	assert.True(t, opts.Headless)
	assert.Equal(t, "playwright", opts.Engine)
	assert.Equal(t, 1024, opts.ViewportWidth)
	assert.Equal(t, 5*time.Second, opts.Timeout)

	cfg.Debug = true
	assert.False(t, browserOptions(cfg).Headless)

	cfg.Debug = false
	cfg.Browser.Headless = false
	assert.False(t, browserOptions(cfg).Headless)
}
