package cmd

import (
	"log/slog"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/breaker"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/failover"
	"github.com/repopulse/pulseflow/pkg/nodes/aitransform"
	"github.com/repopulse/pulseflow/pkg/registry"
	"github.com/repopulse/pulseflow/pkg/router"
)

// RoutingStack bundles the model routing collaborators the AI nodes share:
// catalog, circuit breakers, router, and failover sequencer.
type RoutingStack struct {
	Catalog   *catalog.Catalog
	Breakers  *breaker.Registry
	Router    *router.Router
	Sequencer *failover.Sequencer
}

// NewRoutingStack builds the routing stack over the default model catalog.
func NewRoutingStack(invoker backend.Invoker, usage router.UsageSink, audit failover.Publisher, logger *slog.Logger) *RoutingStack {
	cat := catalog.Default()
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), logger)

	return &RoutingStack{
		Catalog:   cat,
		Breakers:  breakers,
		Router:    router.New(cat, breakers, usage, audit, logger),
		Sequencer: failover.NewSequencer(cat, breakers, invoker, audit, logger),
	}
}

// NewRegistry builds the node registry with every built-in node type
// registered.
func NewRegistry(logger *slog.Logger, stack *RoutingStack, budgets router.BudgetSource) *registry.Registry {
	r := registry.NewRegistry(logger)

	registry.RegisterDefaultNodes(r, aitransform.Dependencies{
		Router:    stack.Router,
		Sequencer: stack.Sequencer,
		Catalog:   stack.Catalog,
		Budgets:   budgets,
		Logger:    logger,
	})

	return r
}
