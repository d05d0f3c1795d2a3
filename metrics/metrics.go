// File: metrics/metrics.go
// Package metrics tracks per-transfer progress statistics.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Metrics is written by the engine's progress callback on the agent
// goroutine and read concurrently by the caller. Fields are plain atomics;
// readers may observe slightly stale values but never torn ones.

package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-http/api"
)

// Metrics holds progress, speed and timing-phase gauges for one transfer.
type Metrics struct {
	uploadNow     atomic.Int64
	uploadTotal   atomic.Int64
	downloadNow   atomic.Int64
	downloadTotal atomic.Int64

	uploadSpeed   atomic.Uint64 // float64 bits
	downloadSpeed atomic.Uint64 // float64 bits

	nameLookup    atomic.Int64 // nanoseconds
	connect       atomic.Int64
	tlsHandshake  atomic.Int64
	pretransfer   atomic.Int64
	startTransfer atomic.Int64
	total         atomic.Int64
	redirect      atomic.Int64
}

// New creates a zeroed Metrics.
func New() *Metrics {
	return &Metrics{}
}

// Update stores a progress report from the engine.
func (m *Metrics) Update(p api.Progress) {
	m.uploadNow.Store(p.UploadNow)
	m.uploadTotal.Store(p.UploadTotal)
	m.downloadNow.Store(p.DownloadNow)
	m.downloadTotal.Store(p.DownloadTotal)
	m.uploadSpeed.Store(math.Float64bits(p.UploadSpeed))
	m.downloadSpeed.Store(math.Float64bits(p.DownloadSpeed))
	m.nameLookup.Store(int64(p.NameLookup))
	m.connect.Store(int64(p.Connect))
	m.tlsHandshake.Store(int64(p.TLSHandshake))
	m.pretransfer.Store(int64(p.Pretransfer))
	m.startTransfer.Store(int64(p.StartTransfer))
	m.total.Store(int64(p.Total))
	m.redirect.Store(int64(p.Redirect))
}

// UploadProgress returns bytes uploaded so far and the estimated total.
func (m *Metrics) UploadProgress() (now, total int64) {
	return m.uploadNow.Load(), m.uploadTotal.Load()
}

// DownloadProgress returns bytes downloaded so far and the estimated total.
func (m *Metrics) DownloadProgress() (now, total int64) {
	return m.downloadNow.Load(), m.downloadTotal.Load()
}

// UploadSpeed returns the average upload speed so far in bytes/second.
func (m *Metrics) UploadSpeed() float64 {
	return math.Float64frombits(m.uploadSpeed.Load())
}

// DownloadSpeed returns the average download speed so far in bytes/second.
func (m *Metrics) DownloadSpeed() float64 {
	return math.Float64frombits(m.downloadSpeed.Load())
}

// NameLookupTime returns the time until DNS resolution completed.
func (m *Metrics) NameLookupTime() time.Duration {
	return time.Duration(m.nameLookup.Load())
}

// ConnectTime returns the time until the connection was established.
func (m *Metrics) ConnectTime() time.Duration {
	return time.Duration(m.connect.Load())
}

// TLSHandshakeTime returns the time until the TLS handshake finished. Zero
// for plaintext transfers.
func (m *Metrics) TLSHandshakeTime() time.Duration {
	return time.Duration(m.tlsHandshake.Load())
}

// PretransferTime returns the time until the transfer was ready to begin.
func (m *Metrics) PretransferTime() time.Duration {
	return time.Duration(m.pretransfer.Load())
}

// StartTransferTime returns the time until the first response byte.
func (m *Metrics) StartTransferTime() time.Duration {
	return time.Duration(m.startTransfer.Load())
}

// TotalTime returns the total duration of the transfer so far.
func (m *Metrics) TotalTime() time.Duration {
	return time.Duration(m.total.Load())
}

// RedirectTime returns the time spent on redirects before the final
// transfer began.
func (m *Metrics) RedirectTime() time.Duration {
	return time.Duration(m.redirect.Load())
}
