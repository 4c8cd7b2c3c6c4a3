package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/tokens"
)

type MediaReader interface {
	Get(ctx context.Context, hash string) ([]byte, bool, error)
}

type DirectoryService struct {
	media       MediaReader
	concurrency int
	log         zerolog.Logger
}

type MediaResult struct {
	ContentType string
	Content     []byte
}

func NewDirectoryService(reader MediaReader, cfg *config.Config, log zerolog.Logger) *DirectoryService {
	concurrency := cfg.Directory.PhotoConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &DirectoryService{media: reader, concurrency: concurrency, log: log}
}

// List projects OrganizationRegistered events into organizations, in event
// order. Registration state and balance come from the current ledger record,
// so revoked organizations are listed as unregistered. Photos are fetched
// concurrently; an organization whose photo cannot be fetched is kept
// without one.
func (s *DirectoryService) List(ctx context.Context, session *ledger.Session) ([]model.Organization, error) {
	if session == nil || session.Ledger == nil {
		return nil, fmt.Errorf("%w: no ledger session", ErrNotAuthorized)
	}
	regs, err := session.Ledger.OrganizationRegistrations(ctx)
	if err != nil {
		return nil, err
	}

	orgs := make([]model.Organization, len(regs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, reg := range regs {
		orgs[i] = model.Organization{
			Address:   reg.Address.Hex(),
			Name:      reg.Name,
			PhotoHash: reg.PhotoHash,
			Balance:   tokens.ToDecimal(reg.Balance),
		}
		g.Go(func() error {
			rec, err := session.Ledger.Organization(gctx, reg.Address)
			if err != nil {
				return fmt.Errorf("organization %s: %w", orgs[i].Address, err)
			}
			orgs[i].IsRegistered = rec.IsRegistered
			if rec.Balance != nil {
				orgs[i].Balance = tokens.ToDecimal(rec.Balance)
			}
			return nil
		})
		if reg.PhotoHash == "" {
			continue
		}
		g.Go(func() error {
			data, found, err := s.media.Get(gctx, reg.PhotoHash)
			if err != nil {
				s.log.Warn().Err(err).
					Str("organization", orgs[i].Address).
					Str("hash", reg.PhotoHash).
					Msg("organization photo unavailable")
				return nil
			}
			if found {
				orgs[i].Photo = data
				orgs[i].PhotoContentType = media.DetectContentType(data)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return orgs, nil
}

// Media returns a stored blob by content hash.
func (s *DirectoryService) Media(ctx context.Context, hash string) (*MediaResult, error) {
	data, found, err := s.media.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &MediaResult{ContentType: media.DetectContentType(data), Content: data}, nil
}
