package registry

import (
	"github.com/repopulse/pulseflow/pkg/nodes/aitransform"
	"github.com/repopulse/pulseflow/pkg/nodes/filter"
	"github.com/repopulse/pulseflow/pkg/nodes/input"
	"github.com/repopulse/pulseflow/pkg/nodes/merge"
	"github.com/repopulse/pulseflow/pkg/nodes/output"
	"github.com/repopulse/pulseflow/pkg/nodes/transform"
)

// RegisterDefaultNodes wires every built-in node factory. The AI variants
// share one dependency bundle.
func RegisterDefaultNodes(r *Registry, aiDeps aitransform.Dependencies) {
	r.RegisterNode(input.NewInputNodeFactory())
	r.RegisterNode(output.NewOutputNodeFactory())
	r.RegisterNode(filter.NewFilterNodeFactory())
	r.RegisterNode(merge.NewMergeNodeFactory())
	r.RegisterNode(transform.NewTransformNodeFactory())
	r.RegisterNode(aitransform.NewSummarizeFactory(aiDeps))
	r.RegisterNode(aitransform.NewSentimentFactory(aiDeps))
	r.RegisterNode(aitransform.NewDigestFactory(aiDeps))
}
