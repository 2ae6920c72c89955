/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain defines the entity model shared by storage, backup and the command surface.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// EntityType names one of the fixed collections persisted by the store.
type EntityType string

const (
	Projects     EntityType = "projects"
	Tasks        EntityType = "tasks"
	Notes        EntityType = "notes"
	ProjectSteps EntityType = "project-steps"
	Connections  EntityType = "connections"
)

// Reserved record fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision (the JavaScript toISOString form).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrUnknownEntityType is returned for names outside the fixed entity set.
var ErrUnknownEntityType = errors.New("unknown entity type")

var entityTypes = []EntityType{Projects, Tasks, Notes, ProjectSteps, Connections}

// EntityTypes returns the fixed entity types in canonical order.
func EntityTypes() []EntityType {
	return append([]EntityType(nil), entityTypes...)
}

// ParseEntityType validates s against the fixed entity set.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the fixed entity types.
func (t EntityType) Valid() bool {
	for _, et := range entityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// FileName is the collection file name, also used as the archive entry name.
func (t EntityType) FileName() string { return string(t) + ".json" }

// OptionKey is the backup/restore inclusion flag that selects t.
func (t EntityType) OptionKey() string {
	switch t {
	case Projects:
		return "includeProjects"
	case Tasks:
		return "includeTasks"
	case Notes:
		return "includeNotes"
	case ProjectSteps:
		return "includeProjectSteps"
	case Connections:
		return "includeConnections"
	default:
		return ""
	}
}

// Timestamp formats ts with TimestampLayout.
func Timestamp(ts time.Time) string { return ts.UTC().Format(TimestampLayout) }
