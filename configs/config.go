// Package configs loads run configuration from a file, with every knob
// overridable from the command line.
package configs

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/jeffa5/toy-crdt/awset"
	"github.com/jeffa5/toy-crdt/model"
)

type Root struct {
	// Servers is the replica count.
	Servers int
	// Broken selects the defective context-free semantics.
	Broken bool
	// Delivery is one of "fifo", "unordered", "causal".
	Delivery string
	// Duplication lets the unordered network redeliver messages.
	Duplication bool
	// MaxStates bounds exploration; 0 means the explorer default.
	MaxStates int
	// Parallel runs the breadth-first search on all CPUs.
	Parallel bool
	// Adds and Removes size the operation schedule, distributed round-robin
	// over the replicas.
	Adds    int
	Removes int
	// Element is the single set member the schedule adds and removes.
	Element string
	// Bind is the serve-mode listen address.
	Bind string
}

func Default() Root {
	return Root{
		Servers:  2,
		Delivery: "fifo",
		Adds:     2,
		Removes:  2,
		Element:  "k",
		Bind:     "127.0.0.1:8080",
	}
}

func ReadConfig(path string) (Root, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return Root{}, err
	}
	c := Default()
	err := viper.Unmarshal(&c)
	return c, err
}

// Validate reports every configuration problem at once rather than stopping
// at the first.
func (c Root) Validate() error {
	var err error
	if c.Servers < 1 {
		err = multierr.Append(err, fmt.Errorf("servers must be at least 1, got %d", c.Servers))
	}
	if _, derr := model.ParseDiscipline(c.Delivery); derr != nil {
		err = multierr.Append(err, derr)
	}
	if c.Duplication && c.Delivery != "unordered" {
		err = multierr.Append(err, fmt.Errorf("duplication requires unordered delivery, got %q", c.Delivery))
	}
	if c.Adds < 0 || c.Removes < 0 {
		err = multierr.Append(err, fmt.Errorf("adds and removes must not be negative, got %d and %d", c.Adds, c.Removes))
	}
	if c.MaxStates < 0 {
		err = multierr.Append(err, fmt.Errorf("max states must not be negative, got %d", c.MaxStates))
	}
	if c.Element == "" {
		err = multierr.Append(err, fmt.Errorf("element must not be empty"))
	}
	return err
}

// Semantics returns the replica semantics the configuration selects.
func (c Root) Semantics() awset.Semantics {
	if c.Broken {
		return awset.ContextFree
	}
	return awset.ContextAware
}

// Discipline returns the parsed delivery discipline. Call Validate first.
func (c Root) Discipline() model.Discipline {
	d, err := model.ParseDiscipline(c.Delivery)
	if err != nil {
		panic(err)
	}
	return d
}

// Scenario builds the operation schedule the configuration describes.
func (c Root) Scenario() model.Scenario {
	return model.DefaultScenario(c.Servers, c.Adds, c.Removes, awset.Element(c.Element))
}
