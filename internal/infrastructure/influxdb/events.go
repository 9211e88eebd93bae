package influxdb

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// Measurement names written by SessionEvents.
const (
	MeasurementSessionEvents = "session_events"
	MeasurementSessionStats  = "session_stats"
)

// maxDeviceTags caps the device tag values in one stats snapshot. Smaller
// buckets are summed under otherDevice.
const (
	maxDeviceTags = 10
	otherDevice   = "other"
)

// PointWriter is the subset of Client used to record session data.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// SessionEvents records session lifecycle events and periodic statistics
// as time-series points. It implements auth.EventPublisher and
// auth.StatsPublisher.
type SessionEvents struct {
	writer PointWriter
}

// NewSessionEvents creates a recorder on top of writer.
func NewSessionEvents(writer PointWriter) *SessionEvents {
	return &SessionEvents{writer: writer}
}

// Publish writes one session_events point tagged by kind. Device, user and
// session IDs are client-controlled or unique, so they are fields.
func (s *SessionEvents) Publish(ctx context.Context, e auth.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("recording %s: %w", e.Kind, err)
	}

	tags := map[string]string{"kind": string(e.Kind)}

	count := e.Count
	if count == 0 {
		count = 1
	}
	fields := map[string]any{"count": count}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if e.SessionID != "" {
		fields["session_id"] = e.SessionID
	}
	if e.Device != "" {
		fields["device"] = e.Device
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.writer.WritePoint(MeasurementSessionEvents, tags, fields, ts)
	return nil
}

// PublishStats writes a session_stats snapshot, plus one point per device
// bucket tagged by device. Only the maxDeviceTags largest buckets keep their
// own tag.
func (s *SessionEvents) PublishStats(ctx context.Context, stats *auth.SessionStats, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("recording session stats: %w", err)
	}
	if stats == nil {
		return nil
	}

	s.writer.WritePoint(MeasurementSessionStats, nil, map[string]any{
		"active_sessions":          stats.ActiveCount,
		"total_sessions_today":     stats.SessionsCreatedToday,
		"unique_users_today":       stats.DistinctUsersToday,
		"average_session_duration": stats.AvgSessionDurationMinutes,
	}, at)

	for _, b := range deviceBuckets(stats.SessionsByDevice) {
		s.writer.WritePoint(MeasurementSessionStats,
			map[string]string{"device": b.device},
			map[string]any{"sessions_today": b.count},
			at)
	}
	return nil
}

type deviceBucket struct {
	device string
	count  int
}

// deviceBuckets orders buckets largest first and folds everything past
// maxDeviceTags into otherDevice.
func deviceBuckets(byDevice map[string]int) []deviceBucket {
	buckets := make([]deviceBucket, 0, len(byDevice))
	for device, n := range byDevice {
		buckets = append(buckets, deviceBucket{device, n})
	}
	slices.SortFunc(buckets, func(a, b deviceBucket) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.device, b.device)
	})
	if len(buckets) <= maxDeviceTags {
		return buckets
	}

	other := deviceBucket{device: otherDevice}
	for _, b := range buckets[maxDeviceTags:] {
		other.count += b.count
	}
	return append(buckets[:maxDeviceTags], other)
}
