package api

import (
	"context"
	"net/http"
	"net/url"

	"planeview/internal/model"
)

func (c *Client) ListStates(ctx context.Context, workspace, project string) ([]model.State, error) {
	return getList[model.State](ctx, c, projectPath(workspace, project)+"/states/", nil)
}

type StatePatch struct {
	Name     *string  `json:"name,omitempty"`
	Sequence *float64 `json:"sequence,omitempty"`
}

func (c *Client) PatchState(ctx context.Context, workspace, project, stateID string, data StatePatch) (model.State, error) {
	var out model.State
	err := c.do(ctx, http.MethodPatch, projectPath(workspace, project)+"/states/"+url.PathEscape(stateID)+"/", nil, data, &out)
	return out, err
}
