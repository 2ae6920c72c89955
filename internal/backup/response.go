/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backup

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// The response shapes below are what the command line and HTTP surfaces print.

type createResponse struct {
	Success  bool      `json:"success"`
	Filename string    `json:"filename"`
	Data     string    `json:"data"`
	Info     *Manifest `json:"info"`
	Location string    `json:"location,omitempty"`
}

type restoreResponse struct {
	Success       bool            `json:"success"`
	RestoredFiles []string        `json:"restored_files"`
	BackupInfo    json.RawMessage `json:"backup_info"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// CreateResponse renders a Create outcome: {success, filename, data (base64), info} or {success:false, error}.
func CreateResponse(res *CreateResult, err error) any {
	if err != nil {
		return failureResponse{Error: err.Error()}
	}
	return createResponse{
		Success:  true,
		Filename: res.Filename,
		Data:     base64.StdEncoding.EncodeToString(res.Data),
		Info:     &res.Manifest,
		Location: res.Location,
	}
}

// RestoreResponse renders a Restore outcome: {success, restored_files, backup_info} or {success:false, error}.
func RestoreResponse(res *RestoreResult, err error) any {
	if err != nil {
		return failureResponse{Error: err.Error()}
	}
	return restoreResponse{Success: true, RestoredFiles: res.RestoredFiles, BackupInfo: res.Manifest}
}

// DecodeArchive decodes base64 archive text as exchanged over text-based process I/O.
func DecodeArchive(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return data, nil
}
