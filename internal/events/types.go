package events

import "time"

// Event enumerates the topics published by the gateway.
type Event string

const (
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderAccepted   Event = "order.accepted"
	EventOrderRejected   Event = "order.rejected"
	EventOrdersCancelled Event = "order.cancelled_all"
	EventScenarioStarted Event = "scenario.started"
	EventScenarioStep    Event = "scenario.step"
	EventScenarioDone    Event = "scenario.finished"
	EventScenarioFailed  Event = "scenario.failed"
)

// AllEvents lists every topic, in publish order of a typical scenario run.
var AllEvents = []Event{
	EventScenarioStarted,
	EventOrderSubmitted,
	EventOrderAccepted,
	EventOrderRejected,
	EventScenarioStep,
	EventOrdersCancelled,
	EventScenarioDone,
	EventScenarioFailed,
}

// Message is what subscribers receive.
type Message struct {
	Event   Event     `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}
