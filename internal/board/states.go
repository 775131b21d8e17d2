package board

import (
	"context"

	"github.com/sirupsen/logrus"

	"planeview/internal/api"
	"planeview/internal/model"
	"planeview/internal/querycache"
)

// ReorderState moves the state at index from to index to and gives it a
// sequence number between its new neighbours. The cached list is updated
// before the server is called.
func (b *Board) ReorderState(ctx context.Context, bc Context, from, to int) (model.State, error) {
	if !bc.valid() {
		return model.State{}, nil
	}
	states, err := b.States(ctx, bc.Workspace, bc.Project)
	if err != nil {
		return model.State{}, err
	}
	if from < 0 || from >= len(states) {
		return model.State{}, IndexError{Index: from, Len: len(states)}
	}
	if to < 0 || to >= len(states) {
		return model.State{}, IndexError{Index: to, Len: len(states)}
	}

	moved := states[from]
	states = append(states[:from], states[from+1:]...)
	states = append(states[:to], append([]model.State{moved}, states[to:]...)...)

	var prev, next *float64
	if to > 0 {
		prev = &states[to-1].Sequence
	}
	if to+1 < len(states) {
		next = &states[to+1].Sequence
	}
	seq := SequenceBetween(prev, next)
	states[to].Sequence = seq

	key := querycache.StateList(bc.Workspace, bc.Project)
	b.states.Set(key, states)

	log := b.log.WithFields(logrus.Fields{"state": moved.ID, "sequence": seq})
	saved, err := b.svc.PatchState(ctx, bc.Workspace, bc.Project, moved.ID, api.StatePatch{Sequence: &seq})
	if err != nil {
		log.WithError(err).Error("persisting state order failed")
		b.states.Invalidate(key)
		return model.State{}, err
	}
	log.Debug("state reordered")
	if saved.ID == "" {
		saved = states[to]
	}
	return saved, nil
}

// ReorderStateByID is ReorderState addressed by state id.
func (b *Board) ReorderStateByID(ctx context.Context, bc Context, stateID string, to int) (model.State, error) {
	if !bc.valid() {
		return model.State{}, nil
	}
	states, err := b.States(ctx, bc.Workspace, bc.Project)
	if err != nil {
		return model.State{}, err
	}
	for i, st := range states {
		if st.ID == stateID {
			return b.ReorderState(ctx, bc, i, to)
		}
	}
	return model.State{}, NotFoundError{Kind: "state", ID: stateID}
}
