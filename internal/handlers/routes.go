package handlers

import "github.com/go-chi/chi/v5"

// Register вешает REST-маршруты на переданный роутер
func (h *Handler) Register(r chi.Router) {
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", h.ListMessages)   // GET /messages?chatId=&limit=
		r.Post("/", h.CreateMessage) // POST /messages

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetMessage)                      // GET /messages/{id}
			r.Patch("/", h.UpdateMessage)                 // PATCH /messages/{id}
			r.Delete("/", h.DeleteMessage)                // DELETE /messages/{id}
			r.Patch("/assignTask/{taskId}", h.AssignTask) // PATCH /messages/{id}/assignTask/{taskId}
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)   // GET /tasks
		r.Post("/", h.CreateTask) // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTask)                  // GET /tasks/{id}
			r.Put("/", h.UpdateTask)               // PUT /tasks/{id}
			r.Delete("/", h.DeleteTask)            // DELETE /tasks/{id}
			r.Get("/messages", h.ListTaskMessages) // GET /tasks/{id}/messages
		})
	})

	r.Get("/health", h.HealthCheck)
}
