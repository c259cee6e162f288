package transport

import "context"

// MonitorRow is one entry of the tabular monitor listing. The serving side
// caps the column widths; the transport carries them verbatim.
type MonitorRow struct {
	Monitor string `json:"monitor"`
	Status  string `json:"status"`
}

// ListResponse carries the monitor listing.
type ListResponse struct {
	Monitors []MonitorRow `json:"monitors"`
}

// ListFunc enumerates the registered monitors.
type ListFunc func(ctx context.Context) (ListResponse, error)

// ShowRequest selects one monitor by name, or all monitors when empty.
type ShowRequest struct {
	Name string `json:"name,omitempty"`
}

// ShowResponse carries the free-form diagnostics text.
type ShowResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ShowFunc renders monitor diagnostics.
type ShowFunc func(ctx context.Context, req ShowRequest) (ShowResponse, error)

// ControlRequest names the monitor a start/stop operation targets.
type ControlRequest struct {
	Name string `json:"name"`
}

// ControlResponse indicates whether the operation was applied.
type ControlResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ControlFunc applies a start or stop to one monitor.
type ControlFunc func(ctx context.Context, req ControlRequest) (ControlResponse, error)

// CheckRequest runs a credential probe for one monitor. Query is the probe
// statement the monitoring user must be allowed to run.
type CheckRequest struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// CheckResponse carries the aggregate permission-check verdict.
type CheckResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CheckFunc runs the permission check.
type CheckFunc func(ctx context.Context, req CheckRequest) (CheckResponse, error)
