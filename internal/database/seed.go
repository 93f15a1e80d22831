package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultProfileID = "main"

// SeedOptions controls what Seed writes besides the profile.
type SeedOptions struct {
	Samples bool
	Logger  *zap.Logger
}

// SeedReport counts the rows written by Seed.
type SeedReport struct {
	ProfileCreated bool
	Categories     int
	Contents       int
	Visitors       int
}

// Seed makes sure the singleton profile exists and, with Samples, upserts a
// small demonstration catalog. Running it twice leaves the same rows: sample
// visitors already present are not recorded again.
func Seed(ctx context.Context, store *catalog.Store, opts SeedOptions) (SeedReport, error) {
	if store == nil {
		return SeedReport{}, errors.New("seed: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var report SeedReport
	_, err := store.GetProfile(ctx)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		if _, err := store.SaveProfile(ctx, defaultProfile()); err != nil {
			return report, fmt.Errorf("seed profile: %w", err)
		}
		report.ProfileCreated = true
	case err != nil:
		return report, fmt.Errorf("seed profile: %w", err)
	}

	if !opts.Samples {
		logger.Info("database seeded", zap.Bool("profile_created", report.ProfileCreated))
		return report, nil
	}

	for _, category := range sampleCategories() {
		if _, err := store.SaveCategory(ctx, category); err != nil {
			return report, fmt.Errorf("seed category %s: %w", category.ID, err)
		}
		report.Categories++
	}
	for _, sample := range sampleContents() {
		if _, err := store.SaveContent(ctx, sample.content); err != nil {
			return report, fmt.Errorf("seed content %s: %w", sample.content.ID, err)
		}
		if _, err := store.SetContentViews(ctx, sample.content.ID, sample.views); err != nil {
			return report, fmt.Errorf("seed views %s: %w", sample.content.ID, err)
		}
		report.Contents++
	}
	for index, visitorID := range []string{"sample-visitor-1", "sample-visitor-2", "sample-visitor-3"} {
		seen, err := store.HasVisitor(ctx, visitorID)
		if err != nil {
			return report, fmt.Errorf("seed visitor %s: %w", visitorID, err)
		}
		if seen {
			continue
		}
		metadata := map[string]any{"source": "seed", "page": "/", "order": index}
		if err := store.RecordVisitor(ctx, visitorID, metadata); err != nil {
			return report, fmt.Errorf("seed visitor %s: %w", visitorID, err)
		}
		report.Visitors++
	}

	logger.Info("database seeded",
		zap.Bool("profile_created", report.ProfileCreated),
		zap.Int("categories", report.Categories),
		zap.Int("contents", report.Contents),
		zap.Int("visitors", report.Visitors),
	)
	return report, nil
}

// Reset drops every table owned by the service, including the migration ledger.
func Reset(db *gorm.DB, logger *zap.Logger) error {
	models := append(catalog.Models(), &migrationRecord{})
	for index := len(models) - 1; index >= 0; index-- {
		if err := db.Migrator().DropTable(models[index]); err != nil {
			return err
		}
	}
	if logger != nil {
		logger.Info("database reset", zap.Int("tables", len(models)))
	}
	return nil
}

func defaultProfile() catalog.Profile {
	return catalog.Profile{
		ID:          defaultProfileID,
		FirstName:   "Prénom",
		LastName:    "Nom",
		Title:       "Auteur",
		Bio:         "Présentez-vous depuis le tableau de bord.",
		Formations:  datatypes.NewJSONSlice([]string{}),
		Motivations: datatypes.NewJSONSlice([]string{}),
		SocialLinks: datatypes.NewJSONType(catalog.SocialLinks{}),
	}
}

func sampleCategories() []catalog.Category {
	return []catalog.Category{
		{ID: "philosophie", Label: "Philosophie", Description: "Questions de fond et grands auteurs", Icon: "brain"},
		{ID: "histoire", Label: "Histoire", Description: "Récits et analyses historiques", Icon: "landmark"},
		{ID: "sciences", Label: "Sciences", Description: "Vulgarisation scientifique", Icon: "atom"},
		{ID: "litterature", Label: "Littérature", Description: "Lectures et critiques", Icon: "book"},
		{ID: "societe", Label: "Société", Description: "Débats contemporains", Icon: "users"},
	}
}

type sampleContent struct {
	content catalog.Content
	views   int64
}

func sampleContents() []sampleContent {
	return []sampleContent{
		{content: catalog.Content{
			ID: "sample-stoicisme", Title: "Introduction au stoïcisme", Description: "Épictète, Sénèque et Marc Aurèle",
			Type: catalog.ContentTypeVideo, Category: "philosophie", Duration: "42:10", PublishedAt: "2026-01-05",
			Tags: datatypes.NewJSONSlice([]string{"stoïcisme", "antiquité"}),
		}, views: 128},
		{content: catalog.Content{
			ID: "sample-rome", Title: "La chute de Rome", Description: "Causes et conséquences",
			Type: catalog.ContentTypeAudio, Category: "histoire", Duration: "55:00", PublishedAt: "2026-01-12",
			Tags: datatypes.NewJSONSlice([]string{"rome", "empire"}),
		}, views: 64},
		{content: catalog.Content{
			ID: "sample-entropie", Title: "Qu'est-ce que l'entropie ?", Description: "Une notion clé expliquée simplement",
			Type: catalog.ContentTypeText, Category: "sciences", PublishedAt: "2026-01-19",
			TextContent: "L'entropie mesure le nombre d'états microscopiques compatibles avec un état macroscopique.",
			Tags:        datatypes.NewJSONSlice([]string{"physique"}),
		}, views: 32},
		{content: catalog.Content{
			ID: "sample-proust", Title: "Lire Proust aujourd'hui", Description: "Pourquoi la Recherche reste actuelle",
			Type: catalog.ContentTypeAudio, Category: "litterature", Duration: "38:45", PublishedAt: "2026-01-26",
			Tags: datatypes.NewJSONSlice([]string{"proust", "roman"}),
		}, views: 16},
		{content: catalog.Content{
			ID: "sample-travail", Title: "L'avenir du travail", Description: "Automatisation et sens du travail",
			Type: catalog.ContentTypeVideo, Category: "societe", Duration: "27:30", PublishedAt: "2026-02-02",
			Tags: datatypes.NewJSONSlice([]string{"travail", "technologie"}),
		}, views: 8},
		{content: catalog.Content{
			ID: "sample-socrate", Title: "Socrate et la maïeutique", Description: "Dialogue et connaissance de soi",
			Type: catalog.ContentTypeText, Category: "philosophie", PublishedAt: "2026-02-09",
			TextContent: "Socrate comparait son art à celui de la sage-femme : faire naître les idées.",
			Tags:        datatypes.NewJSONSlice([]string{"socrate", "dialogue"}),
		}, views: 4},
	}
}
