// Package scheduler contains the scheduling engine: the batch generator,
// the dispatcher that atomically claims due batches, the executor that
// runs them under deadlines and retries, and the coordinator tick that
// strings the three together.
package scheduler

import (
	"log/slog"

	"github.com/leeeeey/TaskCenter/src/alert"
	"github.com/leeeeey/TaskCenter/src/config"
	"github.com/leeeeey/TaskCenter/src/database"
	"github.com/leeeeey/TaskCenter/src/lock"
	"github.com/leeeeey/TaskCenter/src/logging"
	"github.com/leeeeey/TaskCenter/src/model"
	"github.com/leeeeey/TaskCenter/src/script"
)

// Runtime is the explicit process context threaded through the generator,
// dispatcher and executor. Initialized once at process start; never
// mutated afterwards.
type Runtime struct {
	Cfg         *config.Config
	Env         model.EnvType
	DB          *database.DB
	Definitions *database.DefinitionStore
	Batches     *database.BatchStore
	Scripts     *script.Registry
	Notifier    alert.Notifier
	Locks       *lock.Service // nil disables the tick lease
	Audit       *logging.AuditLogger
	Log         *slog.Logger
}

// logger returns a component-tagged logger, tolerating a bare Runtime in
// tests.
func (rt *Runtime) logger(component string) *slog.Logger {
	if rt.Log != nil {
		return rt.Log.With("component", component)
	}
	return logging.Component(component)
}

// audit records a state transition when the audit trail is configured.
func (rt *Runtime) audit(batch string, from, to model.ExecStatus, detail string) {
	if rt.Audit != nil {
		rt.Audit.Transition(batch, from, to, detail)
	}
}

// notify fires a best-effort alert when a sink is configured.
func (rt *Runtime) notify(batchName string) {
	if rt.Notifier != nil {
		rt.Notifier.Notify(batchName)
	}
}
