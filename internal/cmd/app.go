package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/invoker"
	"github.com/taskloop/taskloop/internal/logging"
	"github.com/taskloop/taskloop/internal/orchestrator"
	"github.com/taskloop/taskloop/internal/session"
)

// app holds the wired components every command operates on.
type app struct {
	root    string
	cfg     *config.Config
	layout  artifact.Layout
	log     *logging.Logger
	emitter *orchestrator.Emitter
	runner  orchestrator.Runner
	orch    *orchestrator.Orchestrator
}

// newApp resolves the project root, loads configuration, and wires the
// orchestrator stack.
func newApp() (*app, error) {
	root := viper.GetString("dir")
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	layout := artifact.NewLayout(root)

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.New(layout.Dir(), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}

	emitter := orchestrator.NewEmitter(os.Stdout)
	log = log.WithRun(emitter.RunID())

	inv := invoker.New(invoker.HostPlatform(), log)
	sessions := session.NewManager(layout, log)
	runner := orchestrator.NewAgentRunner(cfg, inv, sessions, root, log)

	return &app{
		root:    root,
		cfg:     cfg,
		layout:  layout,
		log:     log,
		emitter: emitter,
		runner:  runner,
		orch:    orchestrator.New(root, cfg, runner, emitter, log),
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	_ = a.log.Close()
}
