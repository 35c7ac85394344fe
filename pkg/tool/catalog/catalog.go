// Package catalog assembles the closed set of capabilities the router can
// offer.
package catalog

import (
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool/assess"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool/customer"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool/roadmap"
)

func New(c *tool.Client) *tool.Registry {
	return tool.New(
		roadmap.NewSearch(c.Retrieval),
		roadmap.NewGet(c.Roadmap),
		roadmap.NewList(c.Roadmap),
		roadmap.NewStats(c.Roadmap),

		customer.NewCreate(c.Customers),
		customer.NewGet(c.Customers),
		customer.NewList(c.Customers),
		customer.NewUpdate(c.Customers),
		customer.NewDelete(c.Customers),

		assess.New(c.Customers, c.Impact),
		assess.NewOverview(c.Customers, c.Impact),
	)
}
