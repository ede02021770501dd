package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

// Flag is one Chrome command line switch, without the leading dashes.
type Flag struct {
	Name  string
	Value interface{}
}

// Flags derives the Chrome switches for cfg. Later entries win, so values
// from cfg.Args override the computed ones.
func Flags(cfg config.BrowserConfig) []Flag {
	flags := []Flag{
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"no-sandbox", true},
		{"disable-dev-shm-usage", true},
		{"enable-automation", true},
		{"disable-background-networking", true},
		{"disable-popup-blocking", true},
	}
	if cfg.Headless {
		flags = append(flags, Flag{"headless", true}, Flag{"hide-scrollbars", true}, Flag{"mute-audio", true})
	}
	if cfg.DisableGPU {
		flags = append(flags, Flag{"disable-gpu", true})
	}
	if cfg.UserAgent != "" {
		flags = append(flags, Flag{"user-agent", cfg.UserAgent})
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags = append(flags, Flag{"window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)})
	}
	if cfg.Proxy.Enabled && cfg.Proxy.Address != "" {
		flags = append(flags, Flag{"proxy-server", cfg.Proxy.Address})
		if cfg.Proxy.Bypass != "" {
			flags = append(flags, Flag{"proxy-bypass-list", cfg.Proxy.Bypass})
		}
	}
	for _, arg := range cfg.Args {
		if f, ok := parseArg(arg); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// parseArg turns "--name=value" or "--name" into a Flag.
func parseArg(arg string) (Flag, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return Flag{}, false
	}
	name, value, found := strings.Cut(arg, "=")
	if !found {
		return Flag{Name: name, Value: true}, true
	}
	return Flag{Name: name, Value: strings.Trim(value, `"'`)}, true
}

// AllocatorOptions converts cfg into exec allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, f := range Flags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	return opts
}

// supportedEngine reports whether engine names a Chromium based browser,
// the only family the DevTools protocol driver can steer.
func supportedEngine(engine string) bool {
	switch strings.ToLower(engine) {
	case "", "chromium", "chrome":
		return true
	default:
		return false
	}
}
