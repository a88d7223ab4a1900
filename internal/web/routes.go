package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/omri0111-web/facepace-public/internal/web/handlers"
	"github.com/omri0111-web/facepace-public/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	svc := s.services

	// Create handlers
	facesHandler := handlers.NewFacesHandler(s.config, svc.Extractor, svc.Enroller, svc.Matcher, svc.Store)
	peopleHandler := handlers.NewPeopleHandler(svc.Store, svc.Photos, svc.Groups)
	groupsHandler := handlers.NewGroupsHandler(svc.Store, svc.Groups)
	statsHandler := handlers.NewStatsHandler(svc.Store, svc.Photos, svc.Groups)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", facesHandler.Health)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Model and inference
		r.Post("/init", facesHandler.Init)
		r.Post("/detect", facesHandler.Detect)
		r.Post("/enroll", facesHandler.Enroll)
		r.Post("/recognize", facesHandler.Recognize)
		r.Post("/validate-face", facesHandler.ValidateFace)
		r.Post("/process-video-frame", facesHandler.ProcessVideoFrame)
		r.Post("/search", facesHandler.Search)

		// People
		r.Get("/people", peopleHandler.List)
		r.Post("/people", peopleHandler.Create)
		r.Get("/people/search", peopleHandler.Search)
		r.Get("/people/{id}", peopleHandler.Get)
		r.Delete("/people/{id}", peopleHandler.Delete)
		r.Post("/people/{id}/photos", peopleHandler.UploadPhoto)
		r.Get("/people/{id}/photos/{filename}", peopleHandler.GetPhoto)
		r.Delete("/people/{id}/photos/{filename}", peopleHandler.DeletePhoto)

		// Groups
		r.Get("/groups", groupsHandler.List)
		r.Post("/groups", groupsHandler.Create)
		r.Put("/groups/{id}", groupsHandler.Update)
		r.Delete("/groups/{id}", groupsHandler.Delete)
		r.Post("/groups/{id}/members", groupsHandler.AddMember)
		r.Delete("/groups/{id}/members/{personID}", groupsHandler.RemoveMember)

		// Maintenance
		r.Get("/stats", statsHandler.Get)
		r.Post("/clear", statsHandler.Clear)
		r.Post("/index/rebuild", statsHandler.RebuildIndex)
	})
}
