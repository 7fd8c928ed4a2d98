package models

import (
	"fmt"
	"sort"
)

// Queue classes. Each region runs one worker fleet per class.
const (
	QueueGPU = "gpu"
	QueueCPU = "cpu"
)

// InstanceClass describes one schedulable machine shape. The job_type field of
// a submission must name one of these.
type InstanceClass struct {
	Name  string `json:"name"`
	Queue string `json:"queue"`
	GPUs  int    `json:"gpus"`
	VCPUs int    `json:"vcpus"`
}

// instanceClasses is the static job-type table. Keys are the short names used
// on the submission surface.
var instanceClasses = map[string]InstanceClass{
	"g4dn.4x":  {Name: "g4dn.4x", Queue: QueueGPU, GPUs: 1, VCPUs: 16},
	"g4dn.8x":  {Name: "g4dn.8x", Queue: QueueGPU, GPUs: 1, VCPUs: 32},
	"g4dn.12x": {Name: "g4dn.12x", Queue: QueueGPU, GPUs: 4, VCPUs: 48},
	"p3.2x":    {Name: "p3.2x", Queue: QueueGPU, GPUs: 1, VCPUs: 8},
	"p3.8x":    {Name: "p3.8x", Queue: QueueGPU, GPUs: 4, VCPUs: 32},
	"p3.16x":   {Name: "p3.16x", Queue: QueueGPU, GPUs: 8, VCPUs: 64},
	"p3dn.24x": {Name: "p3dn.24x", Queue: QueueGPU, GPUs: 8, VCPUs: 96},
	"c5n.4x":   {Name: "c5n.4x", Queue: QueueCPU, GPUs: 0, VCPUs: 16},
	"c5n.18x":  {Name: "c5n.18x", Queue: QueueCPU, GPUs: 0, VCPUs: 72},
}

// DefaultJobType is used when a submission does not name an instance class.
const DefaultJobType = "c5n.4x"

// DefaultRegion is used when a submission does not name a region.
const DefaultRegion = "us-east-1"

// LookupInstanceClass resolves a job type name to its class.
func LookupInstanceClass(jobType string) (InstanceClass, error) {
	cls, ok := instanceClasses[jobType]
	if !ok {
		return InstanceClass{}, fmt.Errorf("unknown job type %q", jobType)
	}
	return cls, nil
}

// InstanceClassNames returns the known job type names, sorted, for error
// messages.
func InstanceClassNames() []string {
	names := make([]string, 0, len(instanceClasses))
	for name := range instanceClasses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
