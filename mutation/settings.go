package mutation

import (
	"context"
	"fmt"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
	"github.com/creastat/consolesync/resource"
	"github.com/creastat/consolesync/viewstore"
)

// settingsEdit persists a locally computed copy of a project's settings and,
// once the server accepted it, writes the same settings into the cached
// project. The cache is not touched before the remote write succeeds.
type settingsEdit struct {
	api     remote.API
	project *consolesync.Project
	next    *consolesync.ProjectSettings
	// sendName includes the project name in the update body.
	sendName bool
}

func newSettingsEdit(api remote.API, project *consolesync.Project) settingsEdit {
	edit := settingsEdit{api: api, project: project.Clone()}
	if project != nil {
		edit.next = project.Settings.Clone()
	}
	if edit.next == nil {
		edit.next = &consolesync.ProjectSettings{}
	}
	return edit
}

func (e *settingsEdit) validateProject() error {
	if e.project == nil || e.project.ID == "" {
		return consolesync.ErrSelectionUnavailable
	}
	return nil
}

func (e *settingsEdit) Apply(*resource.Cache) bool { return false }

func (e *settingsEdit) Confirm(ctx context.Context) error {
	update := remote.ProjectUpdate{Settings: e.next}
	if e.sendName {
		name := e.project.ProjectName
		update.ProjectName = &name
	}
	_, err := e.api.UpdateProject(ctx, e.project.ID, update)
	return err
}

// Commit sets the cached project's settings to the persisted value. A project
// that is not cached stays uncached.
func (e *settingsEdit) Commit(ctx context.Context, cache *resource.Cache) {
	resource.Mutate(cache, viewstore.ProjectKey(e.project.ID), func(current *consolesync.Project, present bool) (*consolesync.Project, bool) {
		if !present || current == nil {
			return nil, false
		}
		next := current.Clone()
		next.Settings = e.next.Clone()
		return next, true
	})
}

// Revert marks the cached project stale so the next read shows what the
// server actually holds.
func (e *settingsEdit) Revert(ctx context.Context, cache *resource.Cache) {
	cache.Invalidate(viewstore.ProjectKey(e.project.ID))
}

// AddEventDefinition adds an event definition to a project's settings.
type AddEventDefinition struct {
	settingsEdit
	definition consolesync.EventDefinition
}

// NewAddEventDefinition creates an operation adding definition to project.
func NewAddEventDefinition(api remote.API, project *consolesync.Project, definition consolesync.EventDefinition) *AddEventDefinition {
	op := &AddEventDefinition{settingsEdit: newSettingsEdit(api, project), definition: definition}
	if op.next.Events == nil {
		op.next.Events = make(map[string]consolesync.EventDefinition)
	}
	if _, exists := op.next.Events[definition.EventName]; !exists && definition.EventName != "" {
		op.next.Events[definition.EventName] = definition
	}
	return op
}

func (op *AddEventDefinition) Name() string {
	return "add event definition " + op.definition.EventName
}

func (op *AddEventDefinition) Validate() error {
	if err := op.validateProject(); err != nil {
		return err
	}
	if op.definition.EventName == "" || op.definition.Description == "" {
		return fmt.Errorf("%w: event name and description are required", consolesync.ErrInvalidInput)
	}
	if op.project.Settings != nil {
		if _, exists := op.project.Settings.Events[op.definition.EventName]; exists {
			return fmt.Errorf("%w: %s", consolesync.ErrEventDefinitionExists, op.definition.EventName)
		}
	}
	return nil
}

// DeleteEventDefinition removes an event definition from a project's settings.
type DeleteEventDefinition struct {
	settingsEdit
	eventName string
}

// NewDeleteEventDefinition creates an operation removing eventName from
// project. Deleting a name that is not defined still persists the settings.
func NewDeleteEventDefinition(api remote.API, project *consolesync.Project, eventName string) *DeleteEventDefinition {
	op := &DeleteEventDefinition{settingsEdit: newSettingsEdit(api, project), eventName: eventName}
	delete(op.next.Events, eventName)
	return op
}

func (op *DeleteEventDefinition) Name() string {
	return "delete event definition " + op.eventName
}

func (op *DeleteEventDefinition) Validate() error {
	return op.validateProject()
}

// UpdateSentimentThreshold stores a project's sentiment threshold. Task
// listings depend on it, so the displayed task page is refetched afterwards.
type UpdateSentimentThreshold struct {
	settingsEdit
	threshold consolesync.SentimentThreshold
	tasksKey  resource.Key
}

// NewUpdateSentimentThreshold creates the operation. tasksKey may be zero.
func NewUpdateSentimentThreshold(api remote.API, project *consolesync.Project, threshold consolesync.SentimentThreshold, tasksKey resource.Key) *UpdateSentimentThreshold {
	op := &UpdateSentimentThreshold{settingsEdit: newSettingsEdit(api, project), threshold: threshold, tasksKey: tasksKey}
	op.next.SentimentThreshold = &threshold
	op.sendName = true
	return op
}

func (op *UpdateSentimentThreshold) Name() string {
	return fmt.Sprintf("set sentiment threshold to score %g magnitude %g", op.threshold.Score, op.threshold.Magnitude)
}

func (op *UpdateSentimentThreshold) Validate() error {
	if err := op.validateProject(); err != nil {
		return err
	}
	return op.threshold.Validate()
}

func (op *UpdateSentimentThreshold) Commit(ctx context.Context, cache *resource.Cache) {
	op.settingsEdit.Commit(ctx, cache)
	cache.Invalidate(op.tasksKey)
	_, _ = cache.Revalidate(ctx, op.tasksKey)
}
