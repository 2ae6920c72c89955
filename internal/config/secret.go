/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Keyring service and keys.
const (
	keyringService = "TaskSphere"
	keyringS3Key   = "s3_secret_access_key"
)

// SecretStore abstracts the OS keyring so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var secretStore SecretStore = osKeyring{}

// S3Secret returns the S3 secret access key: the env override if set, else the keyring entry.
// A missing entry yields "" so the AWS default credential chain can take over.
func S3Secret() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvS3SecretKey)); v != "" {
		return v, nil
	}
	v, err := secretStore.Get(keyringService, keyringS3Key)
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(err, keyring.ErrUnsupportedPlatform) {
		return "", nil
	}
	return v, err
}

// SetS3Secret stores the S3 secret access key in the keyring; an empty value removes it.
func SetS3Secret(value string) error {
	if value == "" {
		err := secretStore.Delete(keyringService, keyringS3Key)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return secretStore.Set(keyringService, keyringS3Key, value)
}
