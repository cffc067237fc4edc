// Package evm provides EVM-based price feeds: the Accountant rate source and a
// pool TWAP.
package evm

import (
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

func init() {
	sources.Register(sources.SourceTypeAccountant, NewAccountantFeedFromConfig)
	sources.Register(sources.SourceTypeTWAP, NewTWAPFeedFromConfig)
}
