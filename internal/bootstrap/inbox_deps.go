package bootstrap

import (
	"context"
	"os"
	"time"

	"inbox_worker/adapter/out/persistence"
	"inbox_worker/adapter/out/provider/gmail"
	"inbox_worker/adapter/out/provider/outlook"
	"inbox_worker/adapter/out/sheets"
	"inbox_worker/config"
	"inbox_worker/core/agent/llm"
	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/core/service/classification"
	"inbox_worker/core/service/contact"
	"inbox_worker/core/service/draft"
	"inbox_worker/core/service/sheetsync"
	"inbox_worker/core/service/summary"
	"inbox_worker/pkg/logger"

	json "github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Dependencies holds every wired adapter and service.
type Dependencies struct {
	Config *config.Config

	DB *sqlx.DB

	Cache      *summary.SummaryCache
	Classifier *classification.Classifier
	LLM        out.CompletionClient
	Summarizer *summary.Summarizer

	ContactStore *contact.Store
	DraftRepo    out.DraftRepository
	DraftQueue   *draft.Queue

	Providers   map[domain.Source]out.MailProvider
	SheetStore  out.SheetStore
	SheetEngine *sheetsync.Engine
}

// NewDependencies builds the dependency graph from config. Providers and
// the sheet store are optional: a missing credential logs a warning and
// leaves that integration disabled.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:    cfg,
		Providers: make(map[domain.Source]out.MailProvider),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cache
	cache := summary.NewSummaryCache(cfg.CachePath, cfg.CacheTTL)
	if err := cache.Load(); err != nil {
		return nil, nil, err
	}
	deps.Cache = cache
	logger.Info("Summary cache loaded: %d entries", cache.Len())

	// Classifier with weight overrides
	weights := classification.DefaultWeights()
	weights.Keyword = cfg.KeywordWeight
	weights.DomainHint = cfg.DomainHintWeight
	weights.SenderOverride = cfg.SenderOverrideWeight
	weights.UrgencyBoost = cfg.UrgencyBoost
	deps.Classifier = classification.NewWithWeights(weights)

	// LLM
	if cfg.GroqAPIKey != "" {
		deps.LLM = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.GroqAPIKey,
			Model:       cfg.LLMModel,
			BaseURL:     cfg.LLMBaseURL,
			Temperature: cfg.LLMTemperature,
			MaxRetries:  cfg.LLMMaxRetries,
		})
	} else {
		logger.Warn("GROQ_API_KEY not set, summarization and reply drafts disabled")
	}
	deps.Summarizer = summary.NewSummarizer(deps.LLM, cache, deps.Classifier)

	// Draft persistence: Postgres when configured, JSON file otherwise
	if cfg.DatabaseURL != "" {
		db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.DB = db
		repo, err := persistence.NewDraftPgStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		deps.DraftRepo = repo
		logger.Info("Draft store: postgres")
	} else {
		repo, err := persistence.NewDraftFileStore(cfg.DraftsPath)
		if err != nil {
			return nil, nil, err
		}
		deps.DraftRepo = repo
		logger.Info("Draft store: file (%s)", cfg.DraftsPath)
	}
	deps.DraftQueue = draft.NewQueue(deps.DraftRepo, deps.LLM)

	// Gmail
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		token, err := loadToken(cfg.GoogleTokenFile)
		if err != nil {
			logger.WithError(err).Warn("Google token unavailable, gmail provider disabled")
		} else {
			oauthCfg := &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURL,
				Endpoint:     google.Endpoint,
				Scopes: []string{
					gmailapi.GmailModifyScope,
					"https://www.googleapis.com/auth/spreadsheets",
				},
			}
			provider, err := gmail.NewProvider(ctx, token, oauthCfg)
			if err != nil {
				logger.WithError(err).Warn("Gmail provider init failed")
			} else {
				deps.Providers[domain.SourceGmail] = provider
				logger.Info("Gmail provider ready: %s", provider.GetEmail())
			}

			// Sheet store shares the Google credential
			if cfg.SpreadsheetID != "" {
				store, err := sheets.NewAdapter(ctx, token, oauthCfg, sheets.Config{
					SpreadsheetID: cfg.SpreadsheetID,
					SheetRange:    cfg.SheetRange,
				})
				if err != nil {
					logger.WithError(err).Warn("Sheet adapter init failed")
				} else {
					deps.SheetStore = store
				}
			}
		}
	}

	// Outlook
	if cfg.MicrosoftClientID != "" && cfg.MicrosoftClientSecret != "" {
		token, err := loadToken(cfg.MicrosoftTokenFile)
		if err != nil {
			logger.WithError(err).Warn("Microsoft token unavailable, outlook provider disabled")
		} else {
			oauthCfg := &oauth2.Config{
				ClientID:     cfg.MicrosoftClientID,
				ClientSecret: cfg.MicrosoftClientSecret,
				Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenantID),
				Scopes: []string{
					"https://graph.microsoft.com/Mail.ReadWrite",
					"https://graph.microsoft.com/Mail.Send",
					"offline_access",
				},
			}
			provider, err := outlook.NewProvider(ctx, token, oauthCfg)
			if err != nil {
				logger.WithError(err).Warn("Outlook provider init failed")
			} else {
				deps.Providers[domain.SourceOutlook] = provider
				logger.Info("Outlook provider ready: %s", provider.GetEmail())
			}
		}
	}

	// Contact store, seeded from the sheet so merge state survives restarts
	deps.ContactStore = contact.NewStore()
	if deps.SheetStore != nil {
		deps.SheetEngine = sheetsync.NewEngine(deps.SheetStore)
		if rows, err := deps.SheetStore.ReadRows(ctx); err != nil {
			logger.WithError(err).Warn("Sheet seed read failed, starting with empty contacts")
		} else {
			for _, row := range rows {
				if row.ID == "" && row.Email == "" {
					continue
				}
				deps.ContactStore.Put(sheetsync.RowToContact(row))
			}
			logger.Info("Contact store seeded from sheet: %d contacts", deps.ContactStore.Len())
		}
	}

	cleanup := func() {
		if err := deps.Cache.Flush(); err != nil {
			logger.WithError(err).Warn("Cache flush on shutdown failed")
		}
		if deps.DB != nil {
			deps.DB.Close()
		}
	}
	return deps, cleanup, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
