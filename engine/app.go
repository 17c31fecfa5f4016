package engine

// App is a wrapper around the process manager and http router/server concepts defined by this pkg.
// It represents a set of "modules": types that can run workers or handle http routes.
// Just load up modules with .Add() and then run the thing with .Run().
type App struct {
	ProcMgr
	Router *Router
}

func NewApp(httpAddr string, router *Router) *App {
	a := &App{Router: router}
	a.ProcMgr.Add(router.Serve(httpAddr))
	return a
}

func (a *App) Add(mod any) {
	type routableModule interface {
		AttachRoutes(*Router)
	}
	if m, ok := mod.(routableModule); ok {
		m.AttachRoutes(a.Router)
	}

	type workableModule interface {
		AttachWorkers(*ProcMgr)
	}
	if m, ok := mod.(workableModule); ok {
		m.AttachWorkers(&a.ProcMgr)
	}
}
