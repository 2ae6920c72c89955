/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists the entity collections of a data directory.
// Each entity type lives in <data_dir>/<type>.json as a JSON array of records. Every mutation
// rereads the whole file, applies the change and replaces the file transactionally (temp file,
// fsync, rename) while holding an advisory lock under <data_dir>/.locks. Missing or malformed
// files read as empty collections; a malformed file is copied to <data_dir>/.recovery before
// it is first overwritten.
package storage
