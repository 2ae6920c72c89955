/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasksphere/internal/config"
)

// ErrNotConfigured is returned by Open when no backup target driver is set.
var ErrNotConfigured = errors.New("no backup target configured")

// Open selects a Store implementation from the backup target configuration.
// The S3 secret key comes from the keyring (or its env override), never from the config file.
func Open(ctx context.Context, tc config.TargetConfig) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(tc.Driver))) {
	case "":
		return nil, ErrNotConfigured
	case DriverFilesystem:
		return NewFilesystem(tc.FSRoot)
	case DriverS3:
		secret, err := config.S3Secret()
		if err != nil {
			return nil, fmt.Errorf("read s3 secret: %w", err)
		}
		return NewS3(ctx, S3Config{
			Bucket:          tc.S3.Bucket,
			Region:          tc.S3.Region,
			Endpoint:        tc.S3.Endpoint,
			PathStyle:       tc.S3.PathStyle,
			AccessKeyID:     tc.S3.AccessKeyID,
			SecretAccessKey: secret,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", tc.Driver)
	}
}
