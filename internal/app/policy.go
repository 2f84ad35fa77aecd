package app

import "github.com/dkeye/Parley/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickConnection
	DropFrame
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(sess *core.Session) BackpressureAction
}

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Session) BackpressureAction { return KickConnection }

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Session) BackpressureAction { return DropFrame }

// PolicyByName maps the config value onto a Policy; unknown names kick.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return KickPolicy{}
}
