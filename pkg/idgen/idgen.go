package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessgate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

// NewNode returns the snowflake generator for this instance. Each replica
// must run with a distinct node id.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.App.NodeID, err)
	}
	return node, nil
}
