// Package trace records counterexample traces as JSON lines, one event per
// transition, for offline inspection or replay into the visualizer.
package trace

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Event is one step of a counterexample trace.
type Event struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	Label string `json:"label,omitempty"`
	State string `json:"state"`
}

type Recorder interface {
	RecordEvent(event Event)
}

type localFileRecorder struct {
	lock    sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

func MakeLocalFileRecorder(filename string) Recorder {
	file, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	return &localFileRecorder{
		file:    file,
		encoder: json.NewEncoder(file),
	}
}

func (recorder *localFileRecorder) RecordEvent(event Event) {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()

	err := recorder.encoder.Encode(event)
	if err != nil {
		panic(err)
	}
}

type writerRecorder struct {
	lock    sync.Mutex
	encoder *json.Encoder
}

// MakeWriterRecorder records to an arbitrary writer; tests use it with a
// buffer.
func MakeWriterRecorder(w io.Writer) Recorder {
	return &writerRecorder{encoder: json.NewEncoder(w)}
}

func (recorder *writerRecorder) RecordEvent(event Event) {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()

	err := recorder.encoder.Encode(event)
	if err != nil {
		panic(err)
	}
}
