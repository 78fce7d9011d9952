package retransmit

// GapDetector is the receive-side state machine that derives missing sync
// numbers from the sequence of sync numbers actually observed.
type GapDetector struct {
	lastSeen    byte
	hasLastSeen bool
	maxSync     byte
}

// NewGapDetector returns a fresh [GapDetector] for sync numbers that wrap
// back to 0 after maxSync. A zero maxSync defaults to 250, matching
// [NewSyncGen].
func NewGapDetector(maxSync byte) *GapDetector {
	if maxSync == 0 {
		maxSync = 250
	}
	return &GapDetector{maxSync: maxSync}
}

// Detect reports the sync numbers missing between the last observed sync
// number and syncNo, in wrap-around delivery order. The first call on a
// fresh detector always returns nil. A gap longer than maxSync is treated
// as corrupted state: the detector resets silently to syncNo and reports
// no gap.
func (d *GapDetector) Detect(syncNo byte) []byte {
	if !d.hasLastSeen {
		d.lastSeen = syncNo
		d.hasLastSeen = true
		return nil
	}

	if syncNo == d.lastSeen {
		return nil
	}

	modulus := int(d.maxSync) + 1
	count := (int(syncNo) - int(d.lastSeen) - 1 + modulus) % modulus

	if count == 0 || count > int(d.maxSync) {
		d.lastSeen = syncNo
		return nil
	}

	missing := make([]byte, count)
	for i := range missing {
		missing[i] = byte((int(d.lastSeen) + 1 + i) % modulus)
	}

	d.lastSeen = syncNo
	return missing
}
