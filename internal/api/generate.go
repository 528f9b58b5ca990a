package api

import (
	"context"
	"sort"
	"strings"

	"glot/internal/genstate"
	"glot/internal/issuer"
	"glot/internal/l10n"
)

// GenerateService answers generate-state queries and operator triggers.
type GenerateService struct {
	states *genstate.Store
	issuer *issuer.Issuer
}

// NewGenerateService binds the service to its stores.
func NewGenerateService(states *genstate.Store, iss *issuer.Issuer) *GenerateService {
	return &GenerateService{states: states, issuer: iss}
}

// Status reduces a content's generate records to one row per locale: the
// newest live record wins, falling back to the newest superseded one. The
// view never regresses a locale without a genuinely newer record.
func (s *GenerateService) Status(ctx context.Context, contentID string) (*GenerateStatusResponse, error) {
	records, err := s.states.ListForContent(ctx, contentID, l10n.LayerLocale)
	if err != nil {
		return nil, err
	}

	best := make(map[string]*genstate.Record)
	for i := range records {
		rec := &records[i]
		current, seen := best[rec.Locale]
		if !seen {
			best[rec.Locale] = rec
			continue
		}
		// Records arrive newest first, so only a live record may displace
		// a superseded placeholder.
		if current.Status == genstate.StatusSuperseded && rec.Status != genstate.StatusSuperseded {
			best[rec.Locale] = rec
		}
	}

	resp := &GenerateStatusResponse{ContentID: contentID}
	for _, rec := range best {
		resp.Locales = append(resp.Locales, LocaleStatus{
			Locale:          rec.Locale,
			Status:          string(rec.Status),
			Attempts:        rec.Attempts,
			LastError:       HumanizeError(rec.LastError),
			NextAttemptAt:   rec.NextAttemptAt,
			UpdatedAt:       rec.UpdatedAt,
			BaseFingerprint: rec.BaseFingerprint,
		})
	}
	sort.Slice(resp.Locales, func(i, j int) bool {
		return resp.Locales[i].Locale < resp.Locales[j].Locale
	})
	return resp, nil
}

// Trigger plans and enqueues translation work for one content instance.
func (s *GenerateService) Trigger(ctx context.Context, contentID string, force bool) (*GenerateResult, error) {
	res, err := s.issuer.Enqueue(ctx, contentID, force)
	if err != nil {
		return nil, err
	}
	result := fromResult(res)
	return &result, nil
}

// Retry clears exhausted attempts for a content and re-enqueues it,
// bypassing backoff windows.
func (s *GenerateService) Retry(ctx context.Context, contentID string) (*RetryResponse, error) {
	reopened, err := s.states.ResetAttempts(ctx, contentID, l10n.LayerLocale)
	if err != nil {
		return nil, err
	}
	res, err := s.issuer.Enqueue(ctx, contentID, true)
	if err != nil {
		return nil, err
	}
	return &RetryResponse{
		ContentID: contentID,
		Reopened:  reopened,
		Result:    fromResult(res),
	}, nil
}

func fromResult(res *issuer.Result) GenerateResult {
	return GenerateResult{
		ContentID: res.ContentID,
		Enqueued:  res.Enqueued,
		Succeeded: res.Succeeded,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
	}
}

// HumanizeError rewrites internal failure markers for operators. Unknown
// messages pass through untouched.
func HumanizeError(message string) string {
	switch message {
	case "":
		return ""
	case genstate.ReasonNewBase:
		return "replaced by a newer source version"
	case genstate.ReasonLocaleNotSelected:
		return "locale is no longer selected for this workspace"
	case genstate.ReasonStaleInstance:
		return "content was deleted or archived"
	}
	if rest, ok := strings.CutPrefix(message, genstate.RetryExhaustedPrefix); ok {
		return "gave up after repeated failures: " + HumanizeError(strings.TrimSpace(rest))
	}
	return message
}
