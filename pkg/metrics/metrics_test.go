// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_Health(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("Unexpected health response %d %q", resp.StatusCode, body)
	}
}

func TestHandler_Metrics(t *testing.T) {
	Register()
	Register()

	FramesSent.Inc()
	DoorPWM.WithLabelValues("0").Set(42)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"rooftop_frames_sent_total", `rooftop_door_pwm_ratio{door="0"} 42`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output missing %q", want)
		}
	}
}
