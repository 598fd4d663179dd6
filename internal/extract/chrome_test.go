package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/browser/browsertest"
)

func TestCascadeInChrome(t *testing.T) {
	browsertest.RequireChrome(t)

	mainText := strings.TrimSpace(strings.Repeat("Granite ridge trail. ", 13))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><title>Trail guide</title></head><body>
<nav><a href="/">Home</a></nav>
<main><p>%s</p><img src="/img/boots.jpg" width="300" height="300" alt="Hiking boots on the ridge"></main>
<div id="content">Short sidebar note about parking.</div>
</body></html>`, mainText)
	}))
	defer srv.Close()

	d := browser.NewChromeDriver(browser.Options{Headless: true})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, d.Launch(ctx))
	defer d.Close()
	require.NoError(t, d.Navigate(ctx, srv.URL))
	require.NoError(t, d.WaitIdle(ctx, 5*time.Second))

	e := NewEngine(2)
	res, err := e.Extract(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "priority-selector", res.Strategy)
	assert.Equal(t, "main", res.Selector)
	assert.Equal(t, mainText, res.Text)
	assert.Contains(t, res.Images, srv.URL+"/img/boots.jpg")

	readable, err := e.ExtractReadable(ctx, d)
	require.NoError(t, err)
	assert.Contains(t, readable.Text, "Granite ridge trail.")
	assert.NotContains(t, readable.Text, "parking")
}
