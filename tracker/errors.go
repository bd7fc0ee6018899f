package tracker

import "errors"

// errInvalidConfig is returned by FrameDetector.Configure when the
// caller passes a non-positive sample rate, hop, or FFT size. Per
// spec §7 this never escapes ProcessBlock: StringTracker treats a
// detector-init failure as "disable for this block, retry on the next
// configuration change."
var errInvalidConfig = errors.New("tracker: invalid detector configuration")
