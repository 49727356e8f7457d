/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fleconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptionsAreValid(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	base := DefaultOptions()

	cases := []func(*Options){
		func(o *Options) { o.AADRetryInterval = 0 },
		func(o *Options) { o.AADRetryCount = 0 },
		func(o *Options) { o.HTTPTimeout = -time.Second },
		func(o *Options) { o.SettingsTTL = 0 },
		func(o *Options) { o.APIVersion = "" },
	}
	for _, mutate := range cases {
		o := base
		mutate(&o)
		assert.Error(t, o.Validate())
	}
}
