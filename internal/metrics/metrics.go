package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry holds process counters and renders them in the Prometheus text format.
type Registry struct {
	coordinatorStarts        atomic.Int64
	coordinatorStartFailures atomic.Int64
	coordinatorStops         atomic.Int64
	streamErrors             atomic.Int64
	notificationsFired       atomic.Int64
	notificationsSuppressed  atomic.Int64
	notificationsFailed      atomic.Int64
	watcherRestarts          atomic.Int64
	buses                    sync.Map
}

type busStats struct {
	published  sync.Map
	dropped    sync.Map
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

// Default is used by components constructed without an explicit registry.
var Default = &Registry{}

func (r *Registry) IncCoordinatorStart() {
	if r == nil {
		return
	}
	r.coordinatorStarts.Add(1)
}

func (r *Registry) IncCoordinatorStartFailure() {
	if r == nil {
		return
	}
	r.coordinatorStartFailures.Add(1)
}

func (r *Registry) IncCoordinatorStop() {
	if r == nil {
		return
	}
	r.coordinatorStops.Add(1)
}

func (r *Registry) IncStreamError() {
	if r == nil {
		return
	}
	r.streamErrors.Add(1)
}

func (r *Registry) IncNotificationFired() {
	if r == nil {
		return
	}
	r.notificationsFired.Add(1)
}

func (r *Registry) IncNotificationSuppressed() {
	if r == nil {
		return
	}
	r.notificationsSuppressed.Add(1)
}

func (r *Registry) IncNotificationFailed() {
	if r == nil {
		return
	}
	r.notificationsFailed.Add(1)
}

func (r *Registry) IncWatcherRestart() {
	if r == nil {
		return
	}
	r.watcherRestarts.Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.busStats(bus).published, eventType).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.busStats(bus).dropped, eventType).Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	stats := r.busStats(bus)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

// Snapshot is a point-in-time copy of the scalar counters.
type Snapshot struct {
	CoordinatorStarts        int64 `json:"coordinator_starts"`
	CoordinatorStartFailures int64 `json:"coordinator_start_failures"`
	CoordinatorStops         int64 `json:"coordinator_stops"`
	StreamErrors             int64 `json:"stream_errors"`
	NotificationsFired       int64 `json:"notifications_fired"`
	NotificationsSuppressed  int64 `json:"notifications_suppressed"`
	NotificationsFailed      int64 `json:"notifications_failed"`
	WatcherRestarts          int64 `json:"watcher_restarts"`
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		CoordinatorStarts:        r.coordinatorStarts.Load(),
		CoordinatorStartFailures: r.coordinatorStartFailures.Load(),
		CoordinatorStops:         r.coordinatorStops.Load(),
		StreamErrors:             r.streamErrors.Load(),
		NotificationsFired:       r.notificationsFired.Load(),
		NotificationsSuppressed:  r.notificationsSuppressed.Load(),
		NotificationsFailed:      r.notificationsFailed.Load(),
		WatcherRestarts:          r.watcherRestarts.Load(),
	}
}

// EventsPublished returns the published count for one bus and event type.
func (r *Registry) EventsPublished(bus, eventType string) int64 {
	if r == nil {
		return 0
	}
	return counter(&r.busStats(bus).published, eventType).Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	snapshot := r.Snapshot()
	writeCounter(writer, "latera_coordinator_starts_total", "Successful coordinator starts", snapshot.CoordinatorStarts)
	writeCounter(writer, "latera_coordinator_start_failures_total", "Failed coordinator starts", snapshot.CoordinatorStartFailures)
	writeCounter(writer, "latera_coordinator_stops_total", "Coordinator stops", snapshot.CoordinatorStops)
	writeCounter(writer, "latera_stream_errors_total", "Errors forwarded from the watcher stream", snapshot.StreamErrors)
	writeCounter(writer, "latera_notifications_fired_total", "Notifications shown", snapshot.NotificationsFired)
	writeCounter(writer, "latera_notifications_suppressed_total", "Notifications suppressed by the throttle", snapshot.NotificationsSuppressed)
	writeCounter(writer, "latera_notifications_failed_total", "Notifications that failed to dispatch", snapshot.NotificationsFailed)
	writeCounter(writer, "latera_watcher_restarts_total", "Watcher restarts after upstream errors", snapshot.WatcherRestarts)

	busNames := r.busNames()
	sort.Strings(busNames)

	writeHelp(writer, "latera_bus_events_published_total", "Events published per bus")
	fmt.Fprintln(writer, "# TYPE latera_bus_events_published_total counter")
	for _, name := range busNames {
		writeLabeledCounters(writer, "latera_bus_events_published_total", name, &r.busStats(name).published)
	}
	writeHelp(writer, "latera_bus_events_dropped_total", "Events dropped per bus")
	fmt.Fprintln(writer, "# TYPE latera_bus_events_dropped_total counter")
	for _, name := range busNames {
		writeLabeledCounters(writer, "latera_bus_events_dropped_total", name, &r.busStats(name).dropped)
	}
	writeHelp(writer, "latera_bus_subscribers", "Current subscribers per bus")
	fmt.Fprintln(writer, "# TYPE latera_bus_subscribers gauge")
	for _, name := range busNames {
		stats := r.busStats(name)
		label := formatLabel(name)
		fmt.Fprintf(writer, "latera_bus_subscribers{bus=%s,filtered=\"true\"} %d\n", label, stats.filtered.Load())
		fmt.Fprintf(writer, "latera_bus_subscribers{bus=%s,filtered=\"false\"} %d\n", label, stats.unfiltered.Load())
	}

	return nil
}

func (r *Registry) busStats(name string) *busStats {
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func (r *Registry) busNames() []string {
	var names []string
	r.buses.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func counter(counters *sync.Map, key string) *atomic.Int64 {
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	value, _ := counters.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func writeLabeledCounters(writer io.Writer, metric, bus string, counters *sync.Map) {
	var types []string
	counters.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			types = append(types, name)
		}
		return true
	})
	sort.Strings(types)
	for _, eventType := range types {
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(bus), formatLabel(eventType), counter(counters, eventType).Load())
	}
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
