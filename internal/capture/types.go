// Package capture defines the captured-error records produced by the page
// interception shim and the signature used to group them.
package capture

import (
	"strings"
	"time"
)

// Type is the category of a captured error.
type Type string

const (
	TypeConsoleError       Type = "console-error"
	TypeUncaught           Type = "uncaught"
	TypeUnhandledRejection Type = "unhandled-rejection"
	TypeResource           Type = "resource"
	TypeNetwork            Type = "network"

	// TypeUnknown is the pass-through category for values the shim sent that
	// this build does not recognize.
	TypeUnknown Type = "unknown"
)

// KnownTypes lists the closed set of categories in display order.
var KnownTypes = []Type{
	TypeConsoleError,
	TypeUncaught,
	TypeUnhandledRejection,
	TypeResource,
	TypeNetwork,
}

// ParseType maps a raw category string to a Type. Unrecognized values map
// to TypeUnknown.
func ParseType(raw string) Type {
	s := strings.ToLower(strings.TrimSpace(raw))
	// The shim historically emitted camelCase and underscore variants.
	s = strings.ReplaceAll(s, "_", "-")
	switch s {
	case "console-error", "consoleerror", "console":
		return TypeConsoleError
	case "uncaught", "error", "uncaught-error":
		return TypeUncaught
	case "unhandled-rejection", "unhandledrejection", "rejection":
		return TypeUnhandledRejection
	case "resource":
		return TypeResource
	case "network":
		return TypeNetwork
	default:
		return TypeUnknown
	}
}

// Known reports whether t is one of KnownTypes.
func (t Type) Known() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// Error is a captured error after normalization.
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Stack   string `json:"stack,omitempty"`
	// Timestamp is milliseconds since the Unix epoch, set at capture time.
	Timestamp int64 `json:"timestamp"`
}

// Time returns Timestamp as a time.Time.
func (e Error) Time() time.Time { return time.UnixMilli(e.Timestamp) }
