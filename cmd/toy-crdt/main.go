package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/profile"

	"github.com/jeffa5/toy-crdt/check"
	"github.com/jeffa5/toy-crdt/configs"
	"github.com/jeffa5/toy-crdt/explore"
	"github.com/jeffa5/toy-crdt/model"
	"github.com/jeffa5/toy-crdt/trace"
	"github.com/jeffa5/toy-crdt/web"
)

const (
	exitOK           = 0
	exitViolation    = 1
	exitConfig       = 2
	exitInconclusive = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: toy-crdt <command> [flags]

commands:
  check-bfs   breadth-first search for a property violation
  check-dfs   depth-first search for a property violation
  serve       explore the state graph and serve it over HTTP

common flags:
  -broken            use the defective context-free semantics
  -servers N         replica count (default 2)
  -delivery MODE     fifo, unordered, or causal (default fifo)
  -dup               allow duplicate delivery (unordered only)
  -adds N            adds in the operation schedule (default 2)
  -removes N         removes in the operation schedule (default 2)
  -element NAME      the element added and removed (default "k")
  -max-states N      exploration bound (0 = default)
  -parallel          parallel breadth-first search (check-bfs only)
  -trace FILE        write the counterexample trace as JSON lines
  -dot FILE          write the explored graph as Graphviz DOT
  -bind ADDR         serve listen address (default 127.0.0.1:8080)
  -c FILE            config file; command-line flags win
  -profile           write a CPU profile to the working directory
`)
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return exitConfig
	}
	cmd := args[0]
	switch cmd {
	case "check-bfs", "check-dfs", "serve":
	default:
		log.Printf("unknown command %q", cmd)
		usage()
		return exitConfig
	}

	c := configs.Default()
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.Usage = usage
	fs.BoolVar(&c.Broken, "broken", c.Broken, "use the defective context-free semantics")
	fs.IntVar(&c.Servers, "servers", c.Servers, "replica count")
	fs.StringVar(&c.Delivery, "delivery", c.Delivery, "delivery discipline: fifo, unordered, causal")
	fs.BoolVar(&c.Duplication, "dup", c.Duplication, "allow duplicate delivery (unordered only)")
	fs.IntVar(&c.Adds, "adds", c.Adds, "adds in the operation schedule")
	fs.IntVar(&c.Removes, "removes", c.Removes, "removes in the operation schedule")
	fs.StringVar(&c.Element, "element", c.Element, "element to add and remove")
	fs.IntVar(&c.MaxStates, "max-states", c.MaxStates, "exploration bound, 0 for the default")
	fs.BoolVar(&c.Parallel, "parallel", c.Parallel, "parallel breadth-first search")
	fs.StringVar(&c.Bind, "bind", c.Bind, "serve listen address")
	configPath := fs.String("c", "", "config file")
	traceFile := fs.String("trace", "", "write counterexample trace to this file")
	dotFile := fs.String("dot", "", "write explored graph as DOT to this file")
	profileRun := fs.Bool("profile", false, "write a CPU profile")
	if err := fs.Parse(args[1:]); err != nil {
		return exitConfig
	}

	if *configPath != "" {
		fileCfg, err := configs.ReadConfig(*configPath)
		if err != nil {
			log.Printf("reading config: %v", err)
			return exitConfig
		}
		// Flags given explicitly on the command line win over the file.
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		merge := func(name string, apply func()) {
			if !set[name] {
				apply()
			}
		}
		merge("broken", func() { c.Broken = fileCfg.Broken })
		merge("servers", func() { c.Servers = fileCfg.Servers })
		merge("delivery", func() { c.Delivery = fileCfg.Delivery })
		merge("dup", func() { c.Duplication = fileCfg.Duplication })
		merge("adds", func() { c.Adds = fileCfg.Adds })
		merge("removes", func() { c.Removes = fileCfg.Removes })
		merge("element", func() { c.Element = fileCfg.Element })
		merge("max-states", func() { c.MaxStates = fileCfg.MaxStates })
		merge("parallel", func() { c.Parallel = fileCfg.Parallel })
		merge("bind", func() { c.Bind = fileCfg.Bind })
	}

	if err := c.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return exitConfig
	}
	if c.Parallel && cmd == "check-dfs" {
		log.Printf("invalid configuration: parallel search is breadth-first only")
		return exitConfig
	}

	if *profileRun {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	initial, err := model.Initial(c.Semantics(), c.Scenario(), c.Discipline(), c.Duplication)
	if err != nil {
		log.Printf("invalid scenario: %v", err)
		return exitConfig
	}
	opts := explore.Options{
		MaxStates: c.MaxStates,
		Validate:  true,
	}
	ctx := context.Background()

	if *dotFile != "" {
		if err := writeDOT(ctx, initial, opts, *dotFile); err != nil {
			log.Printf("writing DOT graph: %v", err)
			return exitConfig
		}
	}

	switch cmd {
	case "check-bfs", "check-dfs":
		opts.Strategy = explore.BFS
		if cmd == "check-dfs" {
			opts.Strategy = explore.DFS
		}
		return runCheck(ctx, c, initial, opts, *traceFile)
	case "serve":
		return runServe(ctx, c, initial, opts)
	}
	return exitConfig
}

func runCheck(ctx context.Context, c configs.Root, initial model.Global, opts explore.Options, traceFile string) int {
	log.Printf("checking %s semantics, %d servers, %s delivery, %s",
		initial.Sem.Name(), c.Servers, c.Delivery, opts.Strategy)

	var outcome explore.Outcome
	var err error
	if c.Parallel {
		outcome, err = explore.SearchParallel(ctx, initial, opts)
	} else {
		outcome, err = explore.Search(ctx, initial, opts)
	}
	if err != nil {
		log.Printf("search aborted: %v", err)
		return exitConfig
	}

	switch outcome.Kind {
	case explore.OutcomeOK:
		log.Printf("property holds: explored %d states", outcome.Explored)
		return exitOK
	case explore.OutcomeViolation:
		final := outcome.Path[len(outcome.Path)-1].State
		fmt.Printf("violation after %d steps, %d states explored\n", outcome.PathLength(), outcome.Explored)
		if reason := check.Explain(final); reason != "" {
			fmt.Printf("%s\n", reason)
		}
		fmt.Print(explore.FormatPath(outcome.Path))
		if traceFile != "" {
			writeTrace(traceFile, outcome.Path)
			log.Printf("trace written to %s", traceFile)
		}
		return exitViolation
	case explore.OutcomeInconclusive:
		log.Printf("inconclusive: state bound hit after %d states; raise -max-states", outcome.Explored)
		return exitInconclusive
	default:
		panic("unknown outcome kind")
	}
}

func runServe(ctx context.Context, c configs.Root, initial model.Global, opts explore.Options) int {
	graph, err := explore.BuildGraph(ctx, initial, opts)
	if err != nil {
		log.Printf("exploring graph: %v", err)
		return exitConfig
	}
	srv, err := web.NewServer(c.Bind, graph)
	if err != nil {
		log.Printf("binding %s: %v", c.Bind, err)
		return exitConfig
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		if err := srv.Close(); err != nil {
			log.Printf("closing server: %v", err)
		}
	}()
	log.Printf("serving %d states and %d transitions on http://%s", len(graph.Nodes), len(graph.Edges), srv.Addr())
	if err := srv.Serve(); err != nil {
		log.Printf("serving: %v", err)
		return exitConfig
	}
	return exitOK
}

func writeDOT(ctx context.Context, initial model.Global, opts explore.Options, path string) error {
	graph, err := explore.BuildGraph(ctx, initial, opts)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return graph.WriteDOT(file)
}

func writeTrace(path string, steps []explore.Step) {
	recorder := trace.MakeLocalFileRecorder(path)
	runID := uuid.NewString()
	for i, step := range steps {
		recorder.RecordEvent(trace.Event{
			RunID: runID,
			Seq:   i,
			Label: step.Label,
			State: step.State.Summary(),
		})
	}
}
