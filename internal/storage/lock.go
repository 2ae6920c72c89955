/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tasksphere/internal/domain"
)

// LocksDirName holds one lock file per entity type inside the data directory.
const LocksDirName = ".locks"

// typeLocks serializes writers of one collection, inside the process and across processes.
type typeLocks struct {
	dir string
	mu  sync.Map // domain.EntityType -> *sync.Mutex
}

func (l *typeLocks) mutex(t domain.EntityType) *sync.Mutex {
	m, _ := l.mu.LoadOrStore(t, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// acquire takes the lock for t and returns the release func.
func (l *typeLocks) acquire(t domain.EntityType) (func(), error) {
	mu := l.mutex(t)
	mu.Lock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("ensure locks dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, string(t)+".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		mu.Unlock()
		return nil, fmt.Errorf("lock %s: %w", t, err)
	}
	return func() {
		_ = unlockFile(f)
		_ = f.Close()
		mu.Unlock()
	}, nil
}
