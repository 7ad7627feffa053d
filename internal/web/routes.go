package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(
		s.deps.Extractor, s.deps.Classifier, s.deps.Engine, s.deps.Hub,
		s.config.Policy.ConfidenceThreshold,
	)
	employeesHandler := handlers.NewEmployeesHandler(s.deps.Employees, s.deps.Extractor, s.deps.Classifier)
	historyHandler := handlers.NewHistoryHandler(s.deps.Employees, s.deps.Attendance)
	statsHandler := handlers.NewStatsHandler(s.deps.Attendance)
	wsHandler := handlers.NewWSHandler(s.deps.Hub, s.deps.Employees, s.deps.Attendance)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Recognition kiosk endpoint
		r.Post("/attendance/recognize", recognizeHandler.Recognize)

		// Attendance history
		r.Get("/attendance/records", historyHandler.RecentRecords)
		r.Get("/attendance/summaries", historyHandler.RecentSummaries)

		// Employees
		r.Get("/employees", employeesHandler.List)
		r.Post("/employees", employeesHandler.Create)
		r.Get("/employees/search", employeesHandler.Search)
		r.Get("/employees/{code}", employeesHandler.Get)
		r.Put("/employees/{code}", employeesHandler.Update)
		r.Delete("/employees/{code}", employeesHandler.Delete)
		r.Post("/employees/{code}/face", employeesHandler.EnrollFace)
		r.Get("/employees/{code}/records", historyHandler.EmployeeRecords)
		r.Get("/employees/{code}/summary", historyHandler.EmployeeSummary)

		// Dashboard stats
		r.Get("/stats", statsHandler.Get)
	})

	// Live feeds
	s.router.Get("/ws/attendance/notifications", wsHandler.Notifications)
	s.router.Get("/ws/dashboard/updates", wsHandler.Dashboard)
	s.router.Get("/ws/employee/{code}/dashboard", wsHandler.EmployeeDashboard)
}
