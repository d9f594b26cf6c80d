package app

import (
	"gorm.io/gorm"

	redisclient "github.com/docvault/docvault-backend/internal/clients/redis"
	"github.com/docvault/docvault-backend/internal/data/repos"
	"github.com/docvault/docvault-backend/internal/platform/cryptobox"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
	"github.com/docvault/docvault-backend/internal/services"
)

type Services struct {
	Queue        services.JobQueueService
	Orchestrator services.PipelineOrchestrator
	Documents    services.DocumentService
	Regulatory   services.RegulatoryDocumentService
	Search       services.SearchService
	Keys         services.EncryptionKeyService
	Embedder     services.Embedder
	Notifier     services.JobNotifier
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet repos.Set,
	bucket gcs.BucketService,
	bus redisclient.EventBus,
	keyring *cryptobox.Keyring,
	clientset Clients,
) Services {
	var notifier services.JobNotifier
	if bus != nil {
		notifier = services.NewRedisNotifier(log, bus)
	} else {
		notifier = services.NewNoopNotifier()
	}

	queue := services.NewJobQueueService(db, log, reposet.ProcessingJobs, services.DefaultBackoffPolicy(), cfg.ClaimLease)
	orchestrator := services.NewPipelineOrchestrator(db, log, queue, reposet.Documents, reposet.RegulatoryDocuments, reposet.ProcessingJobs, notifier)

	keys := services.NewEncryptionKeyService(db, log, reposet.EncryptionKeys, keyring)
	embedder := services.NewOpenAIEmbedder(log, clientset.OpenAI, cfg.EmbeddingDim)

	return Services{
		Queue:        queue,
		Orchestrator: orchestrator,
		Documents:    services.NewDocumentService(db, log, reposet.Documents, reposet.ProcessingJobs, bucket, orchestrator),
		Regulatory:   services.NewRegulatoryDocumentService(db, log, reposet.RegulatoryDocuments, bucket, orchestrator),
		Search:       services.NewSearchService(db, log, reposet.DocumentChunks, cfg.EmbeddingDim, cfg.SearchCandidateLimit),
		Keys:         keys,
		Embedder:     embedder,
		Notifier:     notifier,
	}
}
