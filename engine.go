// Package acmeview assembles the catalog, the bus, the coordinator and the recorder
// into an engine that keeps the frame views in sync with a CAN bus.
package acmeview

import (
	"context"
	"fmt"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/coordinator"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/recorder"
	"github.com/squadracorsepolito/acmeview/view"

	// transports
	_ "github.com/squadracorsepolito/acmeview/bus/cannelloni"
	_ "github.com/squadracorsepolito/acmeview/bus/socketcan"
)

const (
	RecorderKindNone    = "none"
	RecorderKindLog     = "log"
	RecorderKindQuestDB = "questdb"
	RecorderKindKafka   = "kafka"
)

type RecorderConfig struct {
	// Kind selects the sink: none, log, questdb or kafka.
	Kind string

	Recorder *recorder.Config
	QuestDB  *recorder.QuestDBConfig
	Kafka    *recorder.KafkaConfig
}

func NewDefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Kind: RecorderKindNone,

		Recorder: recorder.NewDefaultConfig(),
		QuestDB:  recorder.NewDefaultQuestDBConfig(),
		Kafka:    recorder.NewDefaultKafkaConfig(),
	}
}

type Config struct {
	// CatalogPath is the path of the DBC file.
	CatalogPath string

	Bus         *bus.Config
	Coordinator *coordinator.Config
	Recorder    *RecorderConfig
}

func NewDefaultConfig() *Config {
	return &Config{
		CatalogPath: "",

		Bus:         bus.NewDefaultConfig(),
		Coordinator: coordinator.NewDefaultConfig(),
		Recorder:    NewDefaultRecorderConfig(),
	}
}

type EngineOption func(*Engine)

// WithBus makes the engine use b instead of opening the configured transport.
func WithBus(b bus.Bus) EngineOption {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithObserver registers an observer of the updates of every frame view.
func WithObserver(observer coordinator.Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, observer)
	}
}

// WithErrorHandler registers a handler of the errors of the received frames.
func WithErrorHandler(handler coordinator.ErrorHandler) EngineOption {
	return func(e *Engine) {
		e.errorHandler = handler
	}
}

// Engine owns the components of a session.
type Engine struct {
	l *internal.Logger

	cfg *Config

	catalog *catalog.Catalog
	labels  *catalog.Labels

	bus         bus.Bus
	coordinator *coordinator.Coordinator
	recorder    *recorder.Recorder

	observers    []coordinator.Observer
	errorHandler coordinator.ErrorHandler

	pipeline *Pipeline
}

// NewEngine loads the catalog and builds the components.
// A catalog that cannot be loaded is logged and replaced by an empty one,
// so the bus keeps running and every frame is counted as foreign.
func NewEngine(cfg *Config, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		l: internal.NewLogger("engine", "acmeview"),

		cfg: cfg,

		pipeline: NewPipeline(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.loadCatalog()

	if err := e.buildRecorder(); err != nil {
		return nil, err
	}

	ownBus := e.bus == nil
	if ownBus {
		b, err := bus.Open(cfg.Bus)
		if err != nil {
			return nil, fmt.Errorf("open %s bus: %w", cfg.Bus.Kind, err)
		}
		e.bus = b
	}

	coordOpts := []coordinator.Option{}
	for _, observer := range e.observers {
		coordOpts = append(coordOpts, coordinator.WithObserver(observer))
	}
	if e.recorder != nil {
		coordOpts = append(coordOpts, coordinator.WithObserver(e.recorder.Observe))
	}
	if e.errorHandler != nil {
		coordOpts = append(coordOpts, coordinator.WithErrorHandler(e.errorHandler))
	}
	if e.labels != nil {
		coordOpts = append(coordOpts, coordinator.WithLabels(e.labels))
	}

	coord, err := coordinator.New(e.catalog, e.bus, cfg.Coordinator, coordOpts...)
	if err != nil {
		if ownBus {
			if shutdownErr := e.bus.Shutdown(); shutdownErr != nil {
				e.l.Error("failed to shut down bus", shutdownErr)
			}
		}
		return nil, err
	}
	e.coordinator = coord

	e.pipeline.AddStage(coord)
	if e.recorder != nil {
		e.pipeline.AddStage(e.recorder)
	}

	return e, nil
}

func (e *Engine) loadCatalog() {
	e.catalog = catalog.Empty()

	if e.cfg.CatalogPath == "" {
		e.l.Warn("no catalog configured, every frame is foreign")
		return
	}

	cat, err := catalog.LoadDBCFile(e.cfg.CatalogPath)
	if err != nil {
		e.l.Error("failed to load catalog, continuing with an empty one", err)
		return
	}
	e.catalog = cat

	labels, err := catalog.LoadLabels(e.cfg.CatalogPath)
	if err != nil {
		e.l.Warn("value labels not available", "reason", err)
	} else {
		e.labels = labels
	}

	e.l.Info("catalog loaded", "path", e.cfg.CatalogPath, "frames", cat.Len())
}

func (e *Engine) buildRecorder() error {
	recCfg := e.cfg.Recorder
	if recCfg == nil {
		return nil
	}

	var sink recorder.Sink
	switch recCfg.Kind {
	case "", RecorderKindNone:
		return nil
	case RecorderKindLog:
		sink = recorder.NewLog(internal.NewLogger("recorder", "log"))
	case RecorderKindQuestDB:
		sink = recorder.NewQuestDB(recCfg.QuestDB)
	case RecorderKindKafka:
		sink = recorder.NewKafka(recCfg.Kafka)
	default:
		return fmt.Errorf("unsupported recorder kind %q", recCfg.Kind)
	}

	e.recorder = recorder.New(recCfg.Kind, sink, recCfg.Recorder)

	return nil
}

func (e *Engine) Init(ctx context.Context) error {
	return e.pipeline.Init(ctx)
}

func (e *Engine) Run(ctx context.Context) {
	e.pipeline.Run(ctx)
}

// Stop stops the coordinator, which shuts the bus down, then drains the recorder.
func (e *Engine) Stop() {
	e.pipeline.Stop()
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

func (e *Engine) Bus() bus.Bus {
	return e.bus
}

func (e *Engine) Coordinator() *coordinator.Coordinator {
	return e.coordinator
}

func (e *Engine) Views() []*view.FrameView {
	return e.coordinator.Views()
}
