package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger derives a child of the global logger tagged with the
// node and component names.
func ComponentLogger(node, component string) zerolog.Logger {
	return log.With().Str("node", node).Str("component", component).Logger()
}
