// Package adaptive decides whether a freshly loaded tile goes into the
// shared cache tier and for how long.
package adaptive

import "time"

type HotnessView interface {
	Score(key string) float64
}

type Query struct {
	Key string
	Z   int
}

type DecisionType int

const (
	DecisionBypass DecisionType = iota
	DecisionFill
)

type Reason string

const (
	ReasonCold        Reason = "cold"
	ReasonDefaultFill Reason = "default_fill"
	ReasonHot         Reason = "hot"
)

type Decision struct {
	Type DecisionType
	TTL  time.Duration
}

type Decider interface {
	Decide(q Query, hv HotnessView) (Decision, Reason)
}
