package model

import "errors"

var errInvalidMaxOutstanding = errors.New("model: maxOutstandingCheckpointRequest must be >= 1")
