package models

import "testing"

func TestLookupInstanceClass(t *testing.T) {
	cls, err := LookupInstanceClass("p3.8x")
	if err != nil {
		t.Fatalf("LookupInstanceClass(p3.8x) error: %v", err)
	}
	if cls.Queue != QueueGPU {
		t.Errorf("p3.8x queue = %q, want %q", cls.Queue, QueueGPU)
	}
	if cls.GPUs != 4 {
		t.Errorf("p3.8x gpus = %d, want 4", cls.GPUs)
	}

	cls, err = LookupInstanceClass("c5n.18x")
	if err != nil {
		t.Fatalf("LookupInstanceClass(c5n.18x) error: %v", err)
	}
	if cls.Queue != QueueCPU {
		t.Errorf("c5n.18x queue = %q, want %q", cls.Queue, QueueCPU)
	}

	if _, err := LookupInstanceClass("m5.large"); err == nil {
		t.Error("expected error for unknown job type")
	}
}

func TestDefaultJobTypeIsKnown(t *testing.T) {
	cls, err := LookupInstanceClass(DefaultJobType)
	if err != nil {
		t.Fatalf("default job type %q is not in the class table: %v", DefaultJobType, err)
	}
	if cls.Queue != QueueCPU {
		t.Errorf("default job type should land on the cpu queue, got %q", cls.Queue)
	}
}

func TestInstanceClassNamesSorted(t *testing.T) {
	names := InstanceClassNames()
	if len(names) == 0 {
		t.Fatal("no instance classes registered")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
