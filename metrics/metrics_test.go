// File: metrics/metrics_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
)

func TestMetrics_Update(t *testing.T) {
	m := New()

	m.Update(api.Progress{
		UploadNow:     10,
		UploadTotal:   100,
		DownloadNow:   2048,
		DownloadTotal: 4096,
		UploadSpeed:   512.5,
		DownloadSpeed: 1024.25,
		NameLookup:    2 * time.Millisecond,
		Connect:       5 * time.Millisecond,
		TLSHandshake:  9 * time.Millisecond,
		Pretransfer:   10 * time.Millisecond,
		StartTransfer: 20 * time.Millisecond,
		Total:         50 * time.Millisecond,
		Redirect:      time.Millisecond,
	})

	if now, total := m.UploadProgress(); now != 10 || total != 100 {
		t.Fatalf("UploadProgress = %d, %d", now, total)
	}
	if now, total := m.DownloadProgress(); now != 2048 || total != 4096 {
		t.Fatalf("DownloadProgress = %d, %d", now, total)
	}
	if m.UploadSpeed() != 512.5 || m.DownloadSpeed() != 1024.25 {
		t.Fatalf("speeds = %v, %v", m.UploadSpeed(), m.DownloadSpeed())
	}
	if m.NameLookupTime() != 2*time.Millisecond {
		t.Fatalf("NameLookupTime = %v", m.NameLookupTime())
	}
	if m.TLSHandshakeTime() != 9*time.Millisecond {
		t.Fatalf("TLSHandshakeTime = %v", m.TLSHandshakeTime())
	}
	if m.TotalTime() != 50*time.Millisecond {
		t.Fatalf("TotalTime = %v", m.TotalTime())
	}
	if m.RedirectTime() != time.Millisecond {
		t.Fatalf("RedirectTime = %v", m.RedirectTime())
	}
}

func TestMetrics_ConcurrentReadersSeeUntornValues(t *testing.T) {
	m := New()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			m.Update(api.Progress{DownloadNow: i, DownloadTotal: i, DownloadSpeed: float64(i)})
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10000; j++ {
				if s := m.DownloadSpeed(); s < 0 {
					t.Errorf("torn speed read: %v", s)
					return
				}
				if now, _ := m.DownloadProgress(); now < 0 {
					t.Errorf("torn progress read: %d", now)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
}
