package models

import "testing"

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobSucceeded, JobFailed, JobTimedOut, JobCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobQueued, JobRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{JobQueued, JobRunning, JobSucceeded, JobFailed, JobTimedOut, JobCancelled} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if JobStatus("exploded").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestEnvMapValue(t *testing.T) {
	v, err := EnvMap{"CUDA_VISIBLE_DEVICES": "0"}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if got := string(v.([]byte)); got != `{"CUDA_VISIBLE_DEVICES":"0"}` {
		t.Errorf("Value = %s", got)
	}

	// An empty map must store as an empty object, not SQL NULL.
	v, err = EnvMap(nil).Value()
	if err != nil {
		t.Fatalf("Value(nil): %v", err)
	}
	if got := string(v.([]byte)); got != "{}" {
		t.Errorf("Value(nil) = %s, want {}", got)
	}
}

func TestEnvMapScan(t *testing.T) {
	var m EnvMap
	if err := m.Scan([]byte(`{"MXNET_SAFE_ACCUMULATION":"1"}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if m["MXNET_SAFE_ACCUMULATION"] != "1" {
		t.Errorf("Scan result = %v", m)
	}

	var nilCase EnvMap
	if err := nilCase.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if nilCase == nil || len(nilCase) != 0 {
		t.Errorf("Scan(nil) should leave an empty map, got %v", nilCase)
	}
}
