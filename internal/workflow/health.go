package workflow

import (
	"context"
	"strings"
)

// ComponentHealth summarizes the readiness of a collaborator.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthyComponent constructs a ready ComponentHealth record.
func HealthyComponent(name string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: true}
}

// UnhealthyComponent constructs an unhealthy ComponentHealth record with context detail.
func UnhealthyComponent(name, detail string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: false, Detail: strings.TrimSpace(detail)}
}

// HealthCheck probes one component.
type HealthCheck interface {
	Check(ctx context.Context) ComponentHealth
}

// PingCheck adapts a ping function into a HealthCheck.
type PingCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Check runs the ping.
func (p PingCheck) Check(ctx context.Context) ComponentHealth {
	if p.Ping == nil {
		return UnhealthyComponent(p.Name, "not configured")
	}
	if err := p.Ping(ctx); err != nil {
		return UnhealthyComponent(p.Name, err.Error())
	}
	return HealthyComponent(p.Name)
}

// StaticCheck reports a fixed state, for components that cannot be probed.
type StaticCheck ComponentHealth

// Check returns the fixed state.
func (s StaticCheck) Check(context.Context) ComponentHealth {
	return ComponentHealth(s)
}
