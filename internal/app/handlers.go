package app

import (
	"github.com/docvault/docvault-backend/internal/handlers"
)

type Handlers struct {
	Documents  *handlers.DocumentsHandler
	Regulatory *handlers.RegulatoryHandler
	Search     *handlers.SearchHandler
	Jobs       *handlers.JobsHandler
}

func wireHandlers(serviceset Services) Handlers {
	return Handlers{
		Documents:  handlers.NewDocumentsHandler(serviceset.Documents),
		Regulatory: handlers.NewRegulatoryHandler(serviceset.Regulatory),
		Search:     handlers.NewSearchHandler(serviceset.Search),
		Jobs:       handlers.NewJobsHandler(serviceset.Documents),
	}
}
