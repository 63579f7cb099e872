package platform

import "errors"

// ErrSizeMismatch is returned by AttachSegment when the mapped region is
// smaller than the header/config declare it should be.
var ErrSizeMismatch = errors.New("platform: segment size mismatch")
