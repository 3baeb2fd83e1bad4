package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/web/handlers"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.service, s.sessionManager)
	studentsHandler := handlers.NewStudentsHandler(s.service, s.opts.MaxUploadBytes)
	coursesHandler := handlers.NewCoursesHandler(s.service)
	attendanceHandler := handlers.NewAttendanceHandler(s.service, s.opts.MaxUploadBytes)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Students
			r.Post("/students", studentsHandler.Register)
			r.Get("/students/{key}", studentsHandler.Get)
			r.Get("/students/{key}/picture", studentsHandler.GetPicture)
			r.Put("/students/{key}/picture", studentsHandler.UpdatePicture)

			// Courses
			r.Get("/courses", coursesHandler.List)
			r.Post("/courses", coursesHandler.Create)
			r.Get("/courses/{course}", coursesHandler.Get)
			r.Delete("/courses/{course}", coursesHandler.Delete)

			// Attendance
			r.Post("/courses/{course}/attendance", attendanceHandler.Submit)
			r.Get("/courses/{course}/attendance", attendanceHandler.List)
			r.Get("/courses/{course}/attendance/{label}", attendanceHandler.Get)
		})
	})
}
