package ports

import "testing"

func TestEventType_StepLevel(t *testing.T) {
	stepLevel := []EventType{
		EventStepStart, EventStepComplete, EventStepFail,
		EventStepRetry, EventStepPause, EventStepResume,
	}
	graphLevel := []EventType{
		EventGraphStart, EventGraphComplete, EventGraphFail,
		EventGraphPause, EventGraphResume, EventGraphRetry,
	}

	for _, et := range stepLevel {
		if !et.StepLevel() {
			t.Errorf("%s should be step-level", et)
		}
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}
	for _, et := range graphLevel {
		if et.StepLevel() {
			t.Errorf("%s should be graph-level", et)
		}
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}
}

func TestEventType_ClosedSet(t *testing.T) {
	for _, et := range []EventType{"", "tao:unknown", "zen:explode", "graph:start"} {
		if et.Valid() {
			t.Errorf("%q should not be valid", et)
		}
		if et.StepLevel() {
			t.Errorf("%q should not be step-level", et)
		}
	}
}
