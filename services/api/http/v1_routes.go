package http

// registerV1Routes sets up the read-only reconciliation endpoints under
// /api/v1/hybrid.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	h := v1.Group("/hybrid")
	{
		h.GET("/report", s.handleV1Report)
		h.GET("/sample", s.handleV1Sample)
		h.GET("/codes", s.handleV1Codes)
	}
}
