package monitor

import (
	"fmt"
	"io"
)

// Column caps for the structured monitor listing consumed by the admin layer.
const (
	monitorColWidth = 20
	statusColWidth  = 10
)

// Show writes the monitor's identity, state and module diagnostics to w.
func (m *Monitor) Show(w io.Writer) {
	fmt.Fprintf(w, "Monitor: %s\n", m.name)
	fmt.Fprintf(w, "\tModule: %s\n", m.moduleName)
	fmt.Fprintf(w, "\tState:  %s\n", m.State())
	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()
	if handle == nil && m.State() != StateRunning && m.State() != StateStopped {
		fmt.Fprintf(w, "\tMonitor failed\n")
		return
	}
	if d, ok := m.module.(Diagnoser); ok {
		d.Diagnostics(w, m)
	} else {
		fmt.Fprintf(w, "\t(no diagnostics)\n")
	}
}

// ShowAll writes every registered monitor's diagnostics to w.
func (r *Registry) ShowAll(w io.Writer) {
	for _, m := range r.snapshot() {
		m.Show(w)
	}
}

// ListTable writes the fixed two-column monitor listing to w.
func (r *Registry) ListTable(w io.Writer) {
	sep := "---------------------+---------------------\n"
	fmt.Fprint(w, sep)
	fmt.Fprintf(w, "%-20s | Status\n", "Monitor")
	fmt.Fprint(w, sep)
	for _, info := range r.List() {
		status := "Stopped"
		if info.Running {
			status = "Running"
		}
		fmt.Fprintf(w, "%-20s | %s\n", info.Name, status)
	}
	fmt.Fprint(w, sep)
}

// Row is one entry of the structured monitor row set, with column widths
// capped at Monitor<=20 and Status<=10 characters.
type Row struct {
	Monitor string `json:"monitor"`
	Status  string `json:"status"`
}

// Rows returns the registered monitors as a structured row set.
func (r *Registry) Rows() []Row {
	rows := make([]Row, 0)
	for _, info := range r.List() {
		status := "Stopped"
		if info.Running {
			status = "Running"
		}
		rows = append(rows, Row{
			Monitor: truncate(info.Name, monitorColWidth),
			Status:  truncate(status, statusColWidth),
		})
	}
	return rows
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
