package extract

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rahul/wayfarer/internal/browser"
)

// MaxImages caps how many image URLs are returned for one page.
const MaxImages = 10

// ProductSelectors are searched for images before falling back to the
// whole page.
var ProductSelectors = []string{
	".product", "#product", "[data-product]", ".item-product",
	".product-container", ".product-detail", ".product-image",
	"#product-image", ".item-image", ".main-image",
	".product-gallery", ".product-photo", ".product-media",
	".woocommerce-product-gallery", ".product-images",
}

var decorativeWords = []string{"icon", "logo", "banner", "background"}

// ImageInfo is an <img> as measured in the page.
type ImageInfo struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Relevant reports whether an image is likely content rather than
// decoration: at least 100px each way, no decorative keyword in its src or
// alt, and either a descriptive alt text or at least 200px each way.
func (img ImageInfo) Relevant() bool {
	if img.Width < 100 || img.Height < 100 {
		return false
	}
	src := strings.ToLower(img.Src)
	alt := strings.ToLower(img.Alt)
	if strings.HasPrefix(src, "data:") {
		return false
	}
	if containsAny(src, decorativeWords) || containsAny(alt, decorativeWords) {
		return false
	}
	if len(img.Alt) > 5 {
		return true
	}
	return img.Width >= 200 && img.Height >= 200
}

func relevantSources(imgs []ImageInfo) []string {
	var out []string
	for _, img := range imgs {
		if img.Relevant() {
			out = append(out, img.Src)
		}
	}
	return out
}

// NormalizeImageURL resolves raw against the page it was found on.
// Scheme-relative URLs get https, root-relative URLs get the page origin,
// bare relative URLs get the origin plus the page's directory.
func NormalizeImageURL(raw, pageURL string) string {
	switch {
	case strings.HasPrefix(raw, "http"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return raw
	}
	origin := u.Scheme + "://" + u.Host
	if strings.HasPrefix(raw, "/") {
		return origin + raw
	}
	dir := u.Path[:strings.LastIndex(u.Path, "/")+1]
	if dir == "" {
		dir = "/"
	}
	return origin + dir + raw
}

// Images returns up to MaxImages relevant absolute image URLs. Product and
// gallery containers are searched first; root (default "body") is used when
// none of them yields a relevant image. A blank page yields no images.
func (e *Engine) Images(ctx context.Context, d browser.Driver, root string) ([]string, error) {
	if root == "" {
		root = "body"
	}
	pageURL, err := d.URL(ctx)
	if err != nil {
		return nil, err
	}
	if pageURL == "" || pageURL == "about:blank" {
		return nil, nil
	}

	var groups [][]ImageInfo
	if err := d.Evaluate(ctx, script(ScriptContainerImages, containerImagesJS, ProductSelectors), &groups); err != nil {
		return nil, err
	}

	var srcs []string
	for _, g := range groups {
		if srcs = relevantSources(g); len(srcs) > 0 {
			break
		}
	}
	if len(srcs) == 0 {
		var all []ImageInfo
		if err := d.Evaluate(ctx, script(ScriptImages, imagesJS, root), &all); err != nil {
			return nil, err
		}
		srcs = relevantSources(all)
	}

	if len(srcs) > MaxImages {
		srcs = srcs[:MaxImages]
	}
	out := make([]string, len(srcs))
	for i, s := range srcs {
		out[i] = NormalizeImageURL(s, pageURL)
	}
	return out, nil
}

// ImageMarker prefixes the image list appended to extracted content so the
// model gateway can lift it out again.
const ImageMarker = "IMAGE_URLS:"

// WithImages appends the image marker block to text when images is non-empty.
func WithImages(text string, images []string) string {
	if len(images) == 0 {
		return text
	}
	b, _ := json.Marshal(images)
	return text + "\n\n" + ImageMarker + " " + string(b) + "\n\n"
}

// SplitImages removes a marker block produced by WithImages and returns the
// remaining text with the decoded URLs. Text without a marker is returned
// unchanged.
func SplitImages(content string) (string, []string) {
	i := strings.Index(content, ImageMarker)
	if i < 0 {
		return content, nil
	}
	rest := content[i+len(ImageMarker):]
	start := strings.Index(rest, "[")
	if start < 0 {
		return content, nil
	}
	var images []string
	dec := json.NewDecoder(strings.NewReader(rest[start:]))
	if err := dec.Decode(&images); err != nil {
		return content, nil
	}
	tail := rest[start+int(dec.InputOffset()):]
	body := strings.TrimRight(content[:i], " \n") + tail
	return strings.TrimSpace(body), images
}
