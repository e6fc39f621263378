// README: zap logger setup.
package infra

import "go.uber.org/zap"

// NewLogger returns a production JSON logger, or a human-readable development
// logger when dev is true.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
