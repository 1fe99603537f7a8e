package browser

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// Response is one recorded Network.responseReceived event. TargetID names
// the tab that received it.
type Response struct {
	RequestID  string
	TargetID   string
	URL        string
	Status     int64
	MimeType   string
	Headers    map[string]string // keys lowercased
	ReceivedAt time.Time
}

// Header returns the value of a header, case-insensitively
func (r Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// NetworkRecorder buffers responses until they are drained
type NetworkRecorder struct {
	mu      sync.Mutex
	pending []Response
	limit   int
}

// NewNetworkRecorder keeps at most limit undrained responses, dropping the
// oldest first. A non-positive limit means unbounded.
func NewNetworkRecorder(limit int) *NetworkRecorder {
	return &NetworkRecorder{limit: limit}
}

// Record converts and stores one event received on tab
func (r *NetworkRecorder) Record(tab string, ev *network.EventResponseReceived) {
	if ev == nil || ev.Response == nil {
		return
	}

	headers := make(map[string]string, len(ev.Response.Headers))
	for k, v := range ev.Response.Headers {
		headers[strings.ToLower(k)] = fmt.Sprint(v)
	}

	resp := Response{
		RequestID:  string(ev.RequestID),
		TargetID:   tab,
		URL:        ev.Response.URL,
		Status:     ev.Response.Status,
		MimeType:   ev.Response.MimeType,
		Headers:    headers,
		ReceivedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, resp)
	if r.limit > 0 && len(r.pending) > r.limit {
		r.pending = r.pending[len(r.pending)-r.limit:]
	}
}

// Drain returns every response recorded since the previous call
func (r *NetworkRecorder) Drain() []Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.pending
	r.pending = nil
	return out
}
