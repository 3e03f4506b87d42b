package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
	"github.com/noah-isme/sma-records-api/pkg/export"
	"github.com/noah-isme/sma-records-api/pkg/storage"
)

// Artifact formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
	FormatCSV  = "csv"
)

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupTemp(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(summaryID, format, relPath string) (string, time.Time, error)
	Parse(token string) (*storage.Claims, error)
}

// ArtifactConfig selects rendered formats and the API prefix used to build download URLs.
type ArtifactConfig struct {
	APIPrefix string
	Formats   []string
}

// ArtifactLink is a signed download URL for one format.
type ArtifactLink struct {
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArtifactDownload is a resolved download ready to stream.
type ArtifactDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ArtifactService renders summary artifacts into the configured formats and serves them through signed links.
type ArtifactService struct {
	storage   fileStorage
	signer    downloadSigner
	renderers map[string]export.Renderer
	formats   []string
	cfg       ArtifactConfig
	logger    *zap.Logger
}

// NewArtifactService constructs the service. Unknown formats in cfg are ignored; json is always rendered.
func NewArtifactService(store fileStorage, signer downloadSigner, cfg ArtifactConfig, logger *zap.Logger) *ArtifactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	renderers := map[string]export.Renderer{
		FormatXLSX: export.NewXLSXExporter("Summary"),
		FormatPDF:  export.NewPDFExporter(),
		FormatCSV:  export.NewCSVExporter(),
	}
	formats := []string{FormatJSON}
	for _, f := range cfg.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if _, ok := renderers[f]; ok && !containsString(formats, f) {
			formats = append(formats, f)
		}
	}
	return &ArtifactService{
		storage:   store,
		signer:    signer,
		renderers: renderers,
		formats:   formats,
		cfg:       cfg,
		logger:    logger,
	}
}

// Formats lists the formats rendered for every summary.
func (s *ArtifactService) Formats() []string {
	return append([]string(nil), s.formats...)
}

// Store renders every format under summaries/<summaryID>/ and returns that directory. Files written
// before a failure are removed so a summary never exposes a partial set.
func (s *ArtifactService) Store(ctx context.Context, summaryID string, artifact models.SummaryArtifact) (string, error) {
	dir := artifactDir(summaryID)
	written := make([]string, 0, len(s.formats))
	for _, format := range s.formats {
		name := path.Join(dir, "summary."+format)
		payload, err := s.render(format, artifact)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			_, err = s.storage.Save(name, payload)
		}
		if err != nil {
			s.discard(written)
			return "", fmt.Errorf("store %s artifact: %w", format, err)
		}
		written = append(written, name)
	}
	s.logger.Sugar().Infow("summary artifact stored", "summary_id", summaryID, "formats", s.formats, "students", len(artifact.Students))
	return dir, nil
}

// Links returns a signed download link per format for a generated summary.
func (s *ArtifactService) Links(summary *models.TermSummary) ([]ArtifactLink, error) {
	if summary.Status != models.SummaryStatusDone || summary.ArtifactPath == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "summary artifact not generated")
	}
	links := make([]ArtifactLink, 0, len(s.formats))
	for _, format := range s.formats {
		rel := path.Join(*summary.ArtifactPath, "summary."+format)
		token, expiresAt, err := s.signer.Generate(summary.ID, format, rel)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to sign download link")
		}
		links = append(links, ArtifactLink{
			Format:    format,
			URL:       fmt.Sprintf("%s/summaries/artifacts/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
			ExpiresAt: expiresAt,
		})
	}
	return links, nil
}

// ResolveDownload validates a token and opens the referenced file.
func (s *ArtifactService) ResolveDownload(token string) (*ArtifactDownload, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	if !strings.HasPrefix(claims.Path, artifactDir(claims.SummaryID)+"/") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token does not match artifact")
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "artifact not found")
		}
		return nil, appErrors.Internal(err, "failed to open artifact")
	}
	return &ArtifactDownload{
		File:        file,
		Filename:    fmt.Sprintf("summary-%s.%s", claims.SummaryID, claims.Format),
		ContentType: s.contentType(claims.Format),
	}, nil
}

// CleanupPartial removes interrupted writes older than ttl.
func (s *ArtifactService) CleanupPartial(ttl time.Duration) (int, error) {
	deleted, err := s.storage.CleanupTemp(ttl)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("partial artifacts removed", "count", len(deleted))
	}
	return len(deleted), nil
}

func (s *ArtifactService) discard(names []string) {
	for _, name := range names {
		if err := s.storage.Delete(name); err != nil {
			s.logger.Sugar().Warnw("failed to remove partial artifact", "name", name, "error", err)
		}
	}
}

func (s *ArtifactService) render(format string, artifact models.SummaryArtifact) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(artifact, "", "  ")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", format)
	}
	return renderer.Render(summaryDataset(artifact))
}

func (s *ArtifactService) contentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	if renderer, ok := s.renderers[format]; ok {
		return renderer.ContentType()
	}
	return "application/octet-stream"
}

// summaryDataset flattens the artifact into one row per student with a column per course unit.
func summaryDataset(artifact models.SummaryArtifact) export.Dataset {
	unitCodes := make([]string, 0)
	for _, student := range artifact.Students {
		for _, unit := range student.UnitAverages {
			if !containsString(unitCodes, unit.UnitCode) {
				unitCodes = append(unitCodes, unit.UnitCode)
			}
		}
	}

	headers := []string{"Matricule", "Full name"}
	headers = append(headers, unitCodes...)
	headers = append(headers, "Term average", "Credits", "Mention", "Decision")

	rows := make([]map[string]string, 0, len(artifact.Students))
	for _, student := range artifact.Students {
		row := map[string]string{
			"Matricule": student.Matricule,
			"Full name": student.FullName,
			"Credits":   fmt.Sprintf("%s/%s", formatNumber(student.CreditsEarned), formatNumber(student.CreditsRequired)),
			"Mention":   student.Mention,
			"Decision":  student.Decision,
		}
		if student.TermAverage != nil {
			row["Term average"] = strconv.FormatFloat(*student.TermAverage, 'f', 2, 64)
		}
		for _, unit := range student.UnitAverages {
			row[unit.UnitCode] = strconv.FormatFloat(unit.Average, 'f', 2, 64)
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title: "Term summary",
		Meta: []export.Field{
			{Label: "Class", Value: artifact.Class.Name},
			{Label: "Term", Value: artifact.Term.Name},
			{Label: "Session", Value: artifact.Session.Name},
			{Label: "Generated at", Value: artifact.GeneratedAt.UTC().Format(time.RFC3339)},
		},
		Headers: headers,
		Rows:    rows,
	}
}

func artifactDir(summaryID string) string {
	return path.Join("summaries", summaryID)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
