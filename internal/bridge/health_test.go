package bridge

import (
	"encoding/json"
	"testing"
)

func newTestReporter(publisher *fakePublisher, events *fakeEvents) *HealthReporter {
	return NewHealthReporter(HealthConfig{
		BridgeID:  "c4bridge-test",
		Version:   "1.2.3",
		Publisher: publisher,
		Events:    events,
		Metrics: func() Metrics {
			return Metrics{CommandsProcessed: 7, EventsReceived: 42}
		},
	})
}

func TestHealthReporter_Healthy(t *testing.T) {
	publisher := newFakePublisher()
	reporter := newTestReporter(publisher, newFakeEvents())
	reporter.SetEntityCount(12)

	reporter.PublishNow()

	msg := publisher.lastOn(t, topics.Health())
	if msg.qos != 1 || !msg.retained {
		t.Errorf("health qos/retained = %d/%v", msg.qos, msg.retained)
	}

	var hm HealthMessage
	if err := json.Unmarshal(msg.payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if hm.Status != HealthHealthy || hm.Bridge != "c4bridge-test" || hm.Version != "1.2.3" {
		t.Errorf("health = %+v", hm)
	}
	if hm.EntityCount != 12 {
		t.Errorf("EntityCount = %d, want 12", hm.EntityCount)
	}
	if hm.Connection == nil || hm.Connection.Status != "connected" {
		t.Errorf("connection = %+v", hm.Connection)
	}
	if hm.Statistics == nil || hm.Statistics.CommandsProcessed != 7 {
		t.Errorf("statistics = %+v", hm.Statistics)
	}
}

func TestHealthReporter_DegradedStates(t *testing.T) {
	publisher := newFakePublisher()
	events := newFakeEvents()
	reporter := newTestReporter(publisher, events)

	publisher.connected = false
	reporter.PublishNow()
	var hm HealthMessage
	if err := json.Unmarshal(publisher.lastOn(t, topics.Health()).payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if hm.Status != HealthDegraded || hm.Reason != "MQTT disconnected" {
		t.Errorf("health = %+v", hm)
	}

	publisher.connected = true
	events.stats.Connected = false
	reporter.PublishNow()
	if err := json.Unmarshal(publisher.lastOn(t, topics.Health()).payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if hm.Status != HealthDegraded || hm.Reason != "Director event feed disconnected" {
		t.Errorf("health = %+v", hm)
	}
	if hm.Connection == nil || hm.Connection.Status != "disconnected" {
		t.Errorf("connection = %+v", hm.Connection)
	}
}

func TestHealthReporter_Lifecycle(t *testing.T) {
	publisher := newFakePublisher()
	reporter := newTestReporter(publisher, newFakeEvents())

	reporter.PublishStarting()
	var hm HealthMessage
	if err := json.Unmarshal(publisher.lastOn(t, topics.Health()).payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if hm.Status != HealthStarting {
		t.Errorf("status = %q, want starting", hm.Status)
	}

	reporter.Stop()
	if err := json.Unmarshal(publisher.lastOn(t, topics.Health()).payload, &hm); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if hm.Status != HealthStopping || hm.Reason != "shutdown" {
		t.Errorf("status = %+v", hm)
	}

	// Stop is idempotent
	reporter.Stop()
}
