// Package hotness scores how often individual tiles are requested.
package hotness

// Interface tracks a decaying request score per tile key.
type Interface interface {
	Inc(key string)
	Score(key string) float64
	Reset(keys ...string)
}
