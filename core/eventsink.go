package core

import "pkt.systems/querydesk/schema"

// ResultSink receives every pipeline result.
type ResultSink interface {
	OnResult(userID schema.UserID, requestID schema.RequestID, result schema.Result)
}
