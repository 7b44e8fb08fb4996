package bench

import amqp "github.com/rabbitmq/amqp091-go"

type Scenario struct {
	Name string
	Kind string
}

// Label - name the scenario's timing is reported under
func (s Scenario) Label() string {
	return s.Name + " bind"
}

// Scenarios run in this order
var Scenarios = []Scenario{
	{Name: "topic", Kind: amqp.ExchangeTopic},
	{Name: "direct", Kind: amqp.ExchangeDirect},
}

type State int

const (
	StateUninitialized State = iota
	StateTopologyReady
	StateWorkloadRunning
	StateWorkloadDone
	StateWorkloadFailed
	StateTeardownComplete
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateTopologyReady:
		return "TOPOLOGY_READY"
	case StateWorkloadRunning:
		return "WORKLOAD_RUNNING"
	case StateWorkloadDone:
		return "WORKLOAD_DONE"
	case StateWorkloadFailed:
		return "WORKLOAD_FAILED"
	case StateTeardownComplete:
		return "TEARDOWN_COMPLETE"
	default:
		return "UNKNOWN"
	}
}
