// Package projectissues is the central issue mutation store: it calls the
// issue API and keeps the shared registry in step with the server.
package projectissues

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"planeview/internal/model"
	"planeview/internal/registry"
)

// Service is the subset of the REST client used here.
type Service interface {
	CreateIssue(ctx context.Context, workspace, project string, data model.IssuePatch) (model.Issue, error)
	PatchIssue(ctx context.Context, workspace, project, issueID string, data model.IssuePatch) (model.Issue, error)
	DeleteIssue(ctx context.Context, workspace, project, issueID string) error
	ArchiveIssue(ctx context.Context, workspace, project, issueID string) (model.Issue, error)
	AddIssueToCycle(ctx context.Context, workspace, project, cycleID, issueID string) error
	ChangeIssueModules(ctx context.Context, workspace, project, issueID string, add, remove []string) error
}

type Store struct {
	svc Service
	reg *registry.Registry
	log *logrus.Entry
	now func() time.Time
}

func New(svc Service, reg *registry.Registry, log *logrus.Entry) *Store {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Store{svc: svc, reg: reg, log: log, now: time.Now}
}

func (s *Store) CreateIssue(ctx context.Context, workspace, project string, data model.IssuePatch) (model.Issue, error) {
	created, err := s.svc.CreateIssue(ctx, workspace, project, data)
	if err != nil {
		return model.Issue{}, err
	}
	s.reg.AddIssues(created)
	return created, nil
}

// UpdateIssue applies the patch to the registry first and restores the
// previous record if the server rejects it.
func (s *Store) UpdateIssue(ctx context.Context, workspace, project, issueID string, data model.IssuePatch) error {
	prev, known := s.reg.Update(issueID, data.Apply)
	if _, err := s.svc.PatchIssue(ctx, workspace, project, issueID, data); err != nil {
		if known {
			s.reg.AddIssues(prev)
		}
		s.log.WithError(err).WithField("issue", issueID).Warn("issue update rejected; registry restored")
		return err
	}
	return nil
}

func (s *Store) RemoveIssue(ctx context.Context, workspace, project, issueID string) error {
	if err := s.svc.DeleteIssue(ctx, workspace, project, issueID); err != nil {
		return err
	}
	s.reg.RemoveIssue(issueID)
	return nil
}

func (s *Store) ArchiveIssue(ctx context.Context, workspace, project, issueID string) error {
	res, err := s.svc.ArchiveIssue(ctx, workspace, project, issueID)
	if err != nil {
		return err
	}
	archivedAt := s.now().UTC()
	if res.ArchivedAt != nil {
		archivedAt = *res.ArchivedAt
	}
	s.reg.Update(issueID, func(is *model.Issue) { is.ArchivedAt = &archivedAt })
	return nil
}

func (s *Store) AddIssueToCycle(ctx context.Context, workspace, project, cycleID, issueID string) error {
	if err := s.svc.AddIssueToCycle(ctx, workspace, project, cycleID, issueID); err != nil {
		return err
	}
	s.reg.Update(issueID, func(is *model.Issue) { is.CycleID = cycleID })
	return nil
}

// ChangeModulesInIssue links the issue to add and unlinks it from remove.
func (s *Store) ChangeModulesInIssue(ctx context.Context, workspace, project, issueID string, add, remove []string) error {
	if err := s.svc.ChangeIssueModules(ctx, workspace, project, issueID, add, remove); err != nil {
		return err
	}
	s.reg.Update(issueID, func(is *model.Issue) {
		next := make([]string, 0, len(is.ModuleIDs)+len(add))
		for _, id := range is.ModuleIDs {
			if !slices.Contains(remove, id) {
				next = append(next, id)
			}
		}
		for _, id := range add {
			if !slices.Contains(next, id) {
				next = append(next, id)
			}
		}
		is.ModuleIDs = next
	})
	return nil
}
