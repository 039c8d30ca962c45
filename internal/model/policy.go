package model

import (
	"fmt"
	"strings"
	"time"
)

// Category is a WAN priority class. Values are the backend multipath modes.
type Category string

const (
	CategoryPrimary  Category = "master"
	CategoryBonded   Category = "on"
	CategoryStandby  Category = "backup"
	CategoryDisabled Category = "off"
)

// Categories lists every category in priority order
var Categories = []Category{CategoryPrimary, CategoryBonded, CategoryStandby, CategoryDisabled}

func (c Category) Valid() bool {
	switch c {
	case CategoryPrimary, CategoryBonded, CategoryStandby, CategoryDisabled:
		return true
	}
	return false
}

func (c Category) Label() string {
	switch c {
	case CategoryPrimary:
		return "Primary"
	case CategoryBonded:
		return "Bonded"
	case CategoryStandby:
		return "Standby"
	case CategoryDisabled:
		return "Disabled"
	}
	return string(c)
}

// Rank orders categories, Primary first
func (c Category) Rank() int {
	for i, cat := range Categories {
		if c == cat {
			return i
		}
	}
	return len(Categories)
}

// ParseCategory accepts either the wire value or the display label.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if s == string(c) || s == strings.ToLower(c.Label()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// WANInterface is one uplink as reported by wan_policy
type WANInterface struct {
	Name      string   `json:"name"`
	Multipath Category `json:"multipath"`
	Up        bool     `json:"up"`
	IP        string   `json:"ip,omitempty"`
	Proto     string   `json:"proto,omitempty"`
	Device    string   `json:"device,omitempty"`
	Gateway   string   `json:"gateway,omitempty"`
}

type WANPolicy struct {
	Interfaces []WANInterface `json:"interfaces"`
}

// PolicyAssignment is the full category assignment submitted to the backend
type PolicyAssignment struct {
	Order []string            `json:"order"`
	Modes map[string]Category `json:"modes"`
}

// BackendResult is the generic mutation reply
type BackendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type BypassStatus struct {
	Enabled   bool   `json:"bypass_enabled"`
	ActiveWAN string `json:"active_wan,omitempty"`
}

// PolicyRow is one uplink in the policy view
type PolicyRow struct {
	Name         string     `json:"name"`
	Category     Category   `json:"category"`
	LastKnown    Category   `json:"last_known"`
	Pending      bool       `json:"pending"`
	PendingSince *time.Time `json:"pending_since,omitempty"`
	Up           bool       `json:"up"`
	IP           string     `json:"ip,omitempty"`
	Proto        string     `json:"proto,omitempty"`
}

type PolicyGroup struct {
	Category   Category    `json:"category"`
	Label      string      `json:"label"`
	Interfaces []PolicyRow `json:"interfaces"`
}

// PolicySnapshot is the policy view state
type PolicySnapshot struct {
	State           string        `json:"state"`
	Groups          []PolicyGroup `json:"groups"`
	Visible         bool          `json:"visible"`
	Dragging        bool          `json:"dragging"`
	WindowExpiresAt *time.Time    `json:"window_expires_at,omitempty"`
	LastRefreshed   time.Time     `json:"last_refreshed"`
	LoadError       string        `json:"load_error,omitempty"`
	SubmitError     string        `json:"submit_error,omitempty"`
	Bypass          *BypassStatus `json:"bypass,omitempty"`
}
