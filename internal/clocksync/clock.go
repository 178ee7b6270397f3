// ABOUTME: Clock synchronization with drift compensation
// ABOUTME: Tracks both offset and drift to handle clock frequency differences
package clocksync

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

const (
	maxRTT      = 100000 // µs; samples above this are congestion noise
	maxResidual = 50000  // µs; larger residuals suggest a clock jump
)

// ClockSync estimates the server clock from round-trip timestamp samples.
// Updated from the session loop, read from the playback side; one mutex
// guards all state.
type ClockSync struct {
	mu             sync.RWMutex
	logger         *zap.SugaredLogger
	offset         int64   // current offset in microseconds (server - client)
	drift          float64 // clock drift rate (µs/µs)
	rtt            int64   // latest round-trip time
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // client time (µs) when offset/drift were last updated
	sampleCount    int
	smoothingRate  float64
}

// New creates a clock synchronizer
func New(logger *zap.SugaredLogger) *ClockSync {
	return &ClockSync{
		logger:        logger.Named("clocksync"),
		smoothingRate: 0.1, // 10% weight to new samples
		quality:       QualityLost,
	}
}

// ProcessSyncResponse folds one sync exchange into the estimate.
// t1 = client sent, t2 = server received, t3 = server sent,
// t4 = client received, all in microseconds.
func (cs *ClockSync) ProcessSyncResponse(t1, t2, t3, t4 int64) {
	rtt, measuredOffset := calculateOffset(t1, t2, t3, t4)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rtt = rtt
	cs.lastSync = time.Now()

	if rtt > maxRTT {
		cs.logger.Debugw("Discarding sync sample: high RTT", "rttMicros", rtt)
		return
	}

	// First sync: initialize offset, no drift yet
	if cs.sampleCount == 0 {
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		cs.logger.Debugw("Initial sync", "offsetMicros", cs.offset, "rttMicros", rtt)
		return
	}

	// Second sync: calculate initial drift
	if cs.sampleCount == 1 {
		dt := float64(t4 - cs.lastSyncMicros)
		if dt > 0 {
			cs.drift = float64(measuredOffset-cs.offset) / dt
		}
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		return
	}

	dt := float64(t4 - cs.lastSyncMicros)
	if dt <= 0 {
		cs.logger.Debug("Discarding sync sample: non-monotonic time")
		return
	}

	// Predict offset from drift, then correct by a fraction of the residual.
	// This is a Kalman filter update with a fixed gain.
	predictedOffset := cs.offset + int64(cs.drift*dt)
	residual := measuredOffset - predictedOffset

	if residual > maxResidual || residual < -maxResidual {
		cs.logger.Debugw("Discarding sync sample: large residual", "residualMicros", residual)
		return
	}

	cs.offset = predictedOffset + int64(cs.smoothingRate*float64(residual))
	cs.drift += cs.smoothingRate * (float64(residual) / dt)
	cs.lastSyncMicros = t4
	cs.sampleCount++

	if rtt < 50000 {
		cs.quality = QualityGood
	} else {
		cs.quality = QualityDegraded
	}
}

// calculateOffset computes RTT and clock offset from one exchange
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// Offset returns the current estimated offset in microseconds
func (cs *ClockSync) Offset() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset
}

// Stats returns the latest RTT and quality
func (cs *ClockSync) Stats() (rtt int64, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.rtt, cs.quality
}

// Synced reports whether at least one sample has been accepted
func (cs *ClockSync) Synced() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.sampleCount > 0
}

// CheckQuality downgrades quality when syncs stop arriving
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if time.Since(cs.lastSync) > 15*time.Second {
		cs.quality = QualityLost
	}
	return cs.quality
}

// ServerToLocalTime converts a server timestamp to local wall clock time
func (cs *ClockSync) ServerToLocalTime(serverTime int64) time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	// Before the first sync, assume server time equals client time
	if cs.sampleCount == 0 {
		return time.Unix(0, serverTime*1000)
	}

	// Inverse of: server = client + offset + drift*(client - lastSync)
	numerator := float64(serverTime) - float64(cs.offset) + cs.drift*float64(cs.lastSyncMicros)
	clientMicros := int64(numerator / (1.0 + cs.drift))

	return time.Unix(0, clientMicros*1000)
}

// NowServerMicros returns the current time in the server's reference frame
func (cs *ClockSync) NowServerMicros() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	clientNow := time.Now().UnixMicro()
	if cs.sampleCount == 0 {
		return clientNow
	}

	dt := clientNow - cs.lastSyncMicros
	return clientNow + cs.offset + int64(cs.drift*float64(dt))
}
