// Package dispatcher implements RequestDispatcher (spec.md §4.7): one
// handler per DAP command name, each enforcing its state precondition
// before touching any debugger state, responding exactly once, and
// reporting whether the debuggee should resume.
//
// Handlers never block beyond the duration of a single request — the
// one exception, the stopOnEntry/entry-stop nested wait in handleLaunch
// and handleAttach, delegates to Env.BlockUntilResume, the same loop
// HookDriver's Pump runs while genuinely stopped. Both call back into
// Dispatch, so there is exactly one place requests are ever routed from.
package dispatcher
