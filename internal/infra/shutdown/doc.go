// Package shutdown runs named cleanup hooks, newest first, when the process
// receives SIGINT or SIGTERM or when shutdown is triggered in code.
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
