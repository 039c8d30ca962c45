package monitor

import (
	"context"

	"github.com/madebyjamstudios/jammonitor/internal/model"
)

// Monitor defines the interface for all dashboard components
type Monitor interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	UpdateStats(stats *model.DashboardStats) error
}

// Views the display loop can show
const (
	ViewOverview = "overview"
	ViewPolicy   = "policy"
)
