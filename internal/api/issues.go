package api

import (
	"context"
	"net/http"
	"net/url"

	"planeview/internal/model"
)

// ListIssues lists project issues matching the applied filter params.
func (c *Client) ListIssues(ctx context.Context, workspace, project string, params map[string]string) ([]model.Issue, error) {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	return getList[model.Issue](ctx, c, projectPath(workspace, project)+"/issues/", q)
}

func (c *Client) CreateIssue(ctx context.Context, workspace, project string, data model.IssuePatch) (model.Issue, error) {
	var out model.Issue
	err := c.do(ctx, http.MethodPost, projectPath(workspace, project)+"/issues/", nil, data, &out)
	return out, err
}

func (c *Client) PatchIssue(ctx context.Context, workspace, project, issueID string, data model.IssuePatch) (model.Issue, error) {
	var out model.Issue
	err := c.do(ctx, http.MethodPatch, projectPath(workspace, project)+"/issues/"+url.PathEscape(issueID)+"/", nil, data, &out)
	return out, err
}

func (c *Client) DeleteIssue(ctx context.Context, workspace, project, issueID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(workspace, project)+"/issues/"+url.PathEscape(issueID)+"/", nil, nil, nil)
}

// ArchiveIssue archives an issue and returns the archive timestamp reported by the server.
func (c *Client) ArchiveIssue(ctx context.Context, workspace, project, issueID string) (model.Issue, error) {
	var out model.Issue
	err := c.do(ctx, http.MethodPost, projectPath(workspace, project)+"/issues/"+url.PathEscape(issueID)+"/archive/", nil, struct{}{}, &out)
	return out, err
}

func (c *Client) AddIssueToCycle(ctx context.Context, workspace, project, cycleID, issueID string) error {
	body := map[string][]string{"issues": {issueID}}
	return c.do(ctx, http.MethodPost, projectPath(workspace, project)+"/cycles/"+url.PathEscape(cycleID)+"/cycle-issues/", nil, body, nil)
}

func (c *Client) ChangeIssueModules(ctx context.Context, workspace, project, issueID string, add, remove []string) error {
	if add == nil {
		add = []string{}
	}
	if remove == nil {
		remove = []string{}
	}
	body := map[string][]string{"modules": add, "removed_modules": remove}
	return c.do(ctx, http.MethodPost, projectPath(workspace, project)+"/issues/"+url.PathEscape(issueID)+"/modules/", nil, body, nil)
}

func (c *Client) ListCycleIssues(ctx context.Context, workspace, project, cycleID string) ([]model.Issue, error) {
	return getList[model.Issue](ctx, c, projectPath(workspace, project)+"/cycles/"+url.PathEscape(cycleID)+"/cycle-issues/", nil)
}

func (c *Client) ListModuleIssues(ctx context.Context, workspace, project, moduleID string) ([]model.Issue, error) {
	return getList[model.Issue](ctx, c, projectPath(workspace, project)+"/modules/"+url.PathEscape(moduleID)+"/module-issues/", nil)
}
