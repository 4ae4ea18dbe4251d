// Package pipeline runs every captured error through the ingestion gate and
// hands the survivors to the history log and the toast manager.
package pipeline

import (
	"strings"

	"errtoast/internal/capture"
)

// Reason explains why an error was dropped. The zero value means accepted.
type Reason string

const (
	Accepted      Reason = ""
	DropNotReady  Reason = "not_ready"
	DropMalformed Reason = "malformed"
	DropDisabled  Reason = "disabled"
	DropSite      Reason = "site_disabled"
	DropType      Reason = "type_disabled"
	DropIgnored   Reason = "ignored"
)

// GateConfig is the capture-related part of the configuration.
type GateConfig struct {
	// Enabled is the global switch. A per-site override in Sites beats it
	// in both directions, so a host set to true is captured even when
	// Enabled is false.
	Enabled bool
	// Sites maps a hostname to an explicit override. Hosts not listed
	// inherit Enabled.
	Sites map[string]bool
	// Types maps a category to its switch. Categories not listed, including
	// TypeUnknown, are enabled.
	Types map[capture.Type]bool
}

// DefaultGateConfig enables capture globally with the documented category
// defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Enabled: true,
		Types: map[capture.Type]bool{
			capture.TypeConsoleError:       true,
			capture.TypeUncaught:           true,
			capture.TypeUnhandledRejection: true,
			capture.TypeResource:           false,
			capture.TypeNetwork:            false,
		},
	}
}

// siteEnabled resolves the per-site override for host.
func (g GateConfig) siteEnabled(host string) bool {
	if v, ok := g.Sites[strings.ToLower(host)]; ok {
		return v
	}
	return g.Enabled
}

func (g GateConfig) typeEnabled(t capture.Type) bool {
	if v, ok := g.Types[t]; ok {
		return v
	}
	return true
}

// check runs the configuration steps in order: global, site, type. The
// site override wins over the global switch in both directions.
func (g GateConfig) check(host string, t capture.Type) Reason {
	_, hasOverride := g.Sites[strings.ToLower(host)]
	if !g.Enabled && !hasOverride {
		return DropDisabled
	}
	if !g.siteEnabled(host) {
		return DropSite
	}
	if !g.typeEnabled(t) {
		return DropType
	}
	return Accepted
}

func (g GateConfig) clone() GateConfig {
	out := GateConfig{Enabled: g.Enabled}
	if g.Sites != nil {
		out.Sites = make(map[string]bool, len(g.Sites))
		for k, v := range g.Sites {
			out.Sites[strings.ToLower(k)] = v
		}
	}
	if g.Types != nil {
		out.Types = make(map[capture.Type]bool, len(g.Types))
		for k, v := range g.Types {
			out.Types[k] = v
		}
	}
	return out
}
