// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

// Repositories groups every repository sharing one backend.
type Repositories struct {
	Backend     *Backend
	Events      *EventLog
	Documents   *DocumentRepository
	Chunks      *ChunkRepository
	Settings    *SettingsRepository
	Checkpoints *CheckpointRepository
}

// NewRepositories wires all repositories on top of backend.
func NewRepositories(backend *Backend) (*Repositories, error) {
	events, err := NewEventLog(backend)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Backend:     backend,
		Events:      events,
		Documents:   NewDocumentRepository(backend),
		Chunks:      NewChunkRepository(backend),
		Settings:    NewSettingsRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must call Close when done.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	repos, err := NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repos, nil
}

// Close releases the event sequence and closes the backend.
func (r *Repositories) Close() error {
	if err := r.Events.Close(); err != nil {
		r.Backend.Close()
		return err
	}
	return r.Backend.Close()
}
